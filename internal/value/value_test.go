package value

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		input string
		want  Type
	}{
		{"INT", TypeInt},
		{"int", TypeInt},
		{"FLOAT", TypeFloat},
		{"REAL", TypeFloat},
		{"DOUBLE", TypeFloat},
		{"DECIMAL", TypeFloat},
		{"STRING", TypeString},
		{"BOOL", TypeBool},
		{"DATE", TypeDate},
		{"TIME", TypeTime},
		{"DATETIME", TypeDateTime},
		{"TIMESTAMP", TypeDateTime},
	}
	for _, tt := range tests {
		got, err := ParseType(tt.input)
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got, tt.input)
	}

	_, err := ParseType("BANANA")
	require.Error(t, err)
}

func TestCoerceInt(t *testing.T) {
	v, err := Coerce(Int(42), TypeInt)
	require.NoError(t, err)
	i, ok := v.IntVal()
	require.True(t, ok)
	assert.Equal(t, int64(42), i)

	// Floats truncate toward zero.
	v, err = Coerce(Float(3.9), TypeInt)
	require.NoError(t, err)
	i, _ = v.IntVal()
	assert.Equal(t, int64(3), i)

	v, err = Coerce(Str("17"), TypeInt)
	require.NoError(t, err)
	i, _ = v.IntVal()
	assert.Equal(t, int64(17), i)

	_, err = Coerce(Bool(true), TypeInt)
	require.Error(t, err)

	_, err = Coerce(Str("abc"), TypeInt)
	require.Error(t, err)
}

func TestCoerceBool(t *testing.T) {
	for _, s := range []string{"true", "1", "yes", "TRUE"} {
		v, err := Coerce(Str(s), TypeBool)
		require.NoError(t, err, s)
		b, _ := v.BoolVal()
		assert.True(t, b, s)
	}
	for _, s := range []string{"false", "0", "no"} {
		v, err := Coerce(Str(s), TypeBool)
		require.NoError(t, err, s)
		b, _ := v.BoolVal()
		assert.False(t, b, s)
	}
	_, err := Coerce(Str("maybe"), TypeBool)
	require.Error(t, err)
	_, err = Coerce(Int(1), TypeBool)
	require.Error(t, err)
}

func TestCoerceString(t *testing.T) {
	v, err := Coerce(Str("hello"), TypeString)
	require.NoError(t, err)
	s, _ := v.StrVal()
	assert.Equal(t, "hello", s)

	_, err = Coerce(Int(5), TypeString)
	require.Error(t, err)
}

func TestCoerceTemporal(t *testing.T) {
	v, err := Coerce(Str("2024-01-15"), TypeDate)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15", v.String())

	v, err = Coerce(Str("14:30:00"), TypeTime)
	require.NoError(t, err)
	assert.Equal(t, "14:30:00", v.String())

	v, err = Coerce(Str("14:30"), TypeTime)
	require.NoError(t, err)
	assert.Equal(t, "14:30:00", v.String())

	v, err = Coerce(Str("2024-01-15T10:30:00"), TypeDateTime)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15T10:30:00", v.String())

	v, err = Coerce(Str("2024-01-15 10:30:00"), TypeDateTime)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15T10:30:00", v.String())

	_, err = Coerce(Str("not-a-date"), TypeDate)
	require.Error(t, err)

	// NULL passes through any type.
	v, err = Coerce(Null(), TypeDate)
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestCompareNumeric(t *testing.T) {
	c, err := Compare(Int(1), Float(1.0))
	require.NoError(t, err)
	assert.Equal(t, 0, c)

	c, err = Compare(Int(2), Float(2.5))
	require.NoError(t, err)
	assert.Equal(t, -1, c)

	c, err = Compare(Float(3.5), Int(3))
	require.NoError(t, err)
	assert.Equal(t, 1, c)
}

func TestCompareMixedCoercesToString(t *testing.T) {
	c, err := Compare(Int(1), Str("1"))
	require.NoError(t, err)
	assert.Equal(t, 0, c)
}

func TestEqualNullSemantics(t *testing.T) {
	assert.False(t, Equal(Null(), Null()))
	assert.False(t, Equal(Null(), Int(1)))
	assert.False(t, Equal(Int(1), Null()))
	assert.True(t, Equal(Int(1), Int(1)))
}

func TestKeyCollapsesIntegralFloats(t *testing.T) {
	assert.Equal(t, Int(1).Key(), Float(1.0).Key())
	assert.NotEqual(t, Int(1).Key(), Float(1.5).Key())
	assert.NotEqual(t, Int(1).Key(), Str("1").Key())
}

func TestParseDateTimeForms(t *testing.T) {
	for _, s := range []string{
		"2024-01-15T10:30:00Z",
		"2024-01-15T10:30:00+02:00",
		"2024-01-15T10:30:00",
		"2024-01-15 10:30:00",
		"2024-01-15T10:30:00.500",
		"2024-01-15",
	} {
		_, err := ParseDateTime(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseDateTime("15/01/2024")
	require.Error(t, err)
}

func TestValidISODateTime(t *testing.T) {
	assert.True(t, ValidISODateTime("2024-01-15T10:30:00Z"))
	assert.True(t, ValidISODateTime("2024-01-15"))
	assert.True(t, ValidISODateTime("10:30:00"))
	assert.False(t, ValidISODateTime("yesterday"))
}

func TestToAnyRoundTrip(t *testing.T) {
	vals := []Value{Null(), Int(5), Float(2.5), Str("x"), Bool(true)}
	for _, v := range vals {
		back, err := FromAny(v.ToAny())
		require.NoError(t, err)
		if v.IsNull() {
			assert.True(t, back.IsNull())
			continue
		}
		assert.True(t, Equal(v, back), v.String())
	}
}

func TestTruthy(t *testing.T) {
	assert.True(t, Bool(true).Truthy())
	assert.False(t, Bool(false).Truthy())
	assert.True(t, Int(5).Truthy())
	assert.False(t, Int(0).Truthy())
	assert.True(t, Str("x").Truthy())
	assert.False(t, Str("").Truthy())
	assert.False(t, Null().Truthy())
}

func TestDateDiscardsTimeOfDay(t *testing.T) {
	d := Date(time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC))
	assert.Equal(t, "2024-03-10", d.String())
}
