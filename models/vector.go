package models

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
)

// Vector bildet eine pgvector-Spalte ab. Das SQL-Literal ist ein JSON-Array
// von Floats ("[0.1,0.2,0.3]"), wie pgvector es erwartet.
type Vector []float32

// Value serialisiert den Vektor als pgvector-Literal.
func (v Vector) Value() (driver.Value, error) {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String(), nil
}

// Scan parst das pgvector-Literal zurück in einen Vector.
func (v *Vector) Scan(src interface{}) error {
	var raw string
	switch t := src.(type) {
	case string:
		raw = t
	case []byte:
		raw = string(t)
	case nil:
		*v = nil
		return nil
	default:
		return fmt.Errorf("vector: cannot scan %T", src)
	}
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "[") || !strings.HasSuffix(raw, "]") {
		return fmt.Errorf("vector: malformed literal %q", raw)
	}
	inner := strings.TrimSpace(raw[1 : len(raw)-1])
	if inner == "" {
		*v = Vector{}
		return nil
	}
	parts := strings.Split(inner, ",")
	out := make(Vector, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return fmt.Errorf("vector: malformed component %q: %w", p, err)
		}
		out = append(out, float32(f))
	}
	*v = out
	return nil
}

// GormDataType sorgt dafür, dass AutoMigrate die Spalte nicht anfasst;
// die eigentliche vector(N)-Spalte legt die Bootstrap-Migration an.
func (Vector) GormDataType() string {
	return "vector"
}
