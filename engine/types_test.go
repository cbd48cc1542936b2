package engine

import "testing"

func TestTypeString(t *testing.T) {
	tests := []struct {
		typ  Type
		want string
	}{
		{TypeUndefined, "undefined"},
		{TypeNull, "null"},
		{TypeBoolean, "boolean"},
		{TypeNumber, "number"},
		{TypeString, "string"},
		{TypeObject, "object"},
		{TypePointer, "pointer"},
		{Type(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("Type(%d).String() = %q, want %q", tt.typ, got, tt.want)
		}
	}
}

func TestTypeMask(t *testing.T) {
	for typ := TypeUndefined; typ <= TypePointer; typ++ {
		if !MaskAny.Has(typ) {
			t.Errorf("MaskAny missing %s", typ)
		}
		if !typ.Mask().Has(typ) {
			t.Errorf("%s.Mask() does not contain itself", typ)
		}
	}

	m := MaskNumber | MaskString
	if !m.Has(TypeNumber) || !m.Has(TypeString) {
		t.Fatal("combined mask lost its members")
	}
	if m.Has(TypeObject) {
		t.Fatal("combined mask matches a type it does not contain")
	}
}
