package shape

import (
	"slices"
	"testing"
)

func TestShapeString(t *testing.T) {
	t.Parallel()

	s := Make(F16, 2, 4, 128, 64)
	if got, want := s.String(), "f16[2,4,128,64]{3,2,1,0}"; got != want {
		t.Fatalf("String: got %q want %q", got, want)
	}
	transposed := s.WithLayout(2, 3, 1, 0)
	if got, want := transposed.String(), "f16[2,4,128,64]{2,3,1,0}"; got != want {
		t.Fatalf("String: got %q want %q", got, want)
	}
}

func TestShapeEqualUsesDefaultLayout(t *testing.T) {
	t.Parallel()

	a := Make(F32, 3, 5)
	b := a.WithLayout(1, 0)
	if !a.Equal(b) {
		t.Fatalf("row-major shapes should compare equal")
	}
	if a.Equal(a.WithLayout(0, 1)) {
		t.Fatalf("column-major should differ from row-major")
	}
}

func TestShapeValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		shape   Shape
		wantErr bool
	}{
		{name: "ok", shape: Make(BF16, 1, 2, 3)},
		{name: "zero dim", shape: Make(F16, 1, 0, 3), wantErr: true},
		{name: "invalid type", shape: Make(Invalid, 1), wantErr: true},
		{name: "short layout", shape: Make(F16, 2, 2).WithLayout(0), wantErr: true},
		{name: "repeated layout", shape: Make(F16, 2, 2).WithLayout(1, 1), wantErr: true},
		{name: "custom layout", shape: Make(F16, 2, 2, 2).WithLayout(0, 2, 1)},
	}
	for _, tc := range tests {
		err := tc.shape.Validate()
		if (err != nil) != tc.wantErr {
			t.Fatalf("%s: Validate() err=%v wantErr=%v", tc.name, err, tc.wantErr)
		}
	}
}

func TestParsePrimitiveType(t *testing.T) {
	t.Parallel()

	for _, pt := range []PrimitiveType{PRED, F16, BF16, F32, F64} {
		got, err := ParsePrimitiveType(pt.String())
		if err != nil {
			t.Fatalf("ParsePrimitiveType(%q): %v", pt, err)
		}
		if got != pt {
			t.Fatalf("ParsePrimitiveType(%q): got %v", pt, got)
		}
	}
	if _, err := ParsePrimitiveType("invalid"); err == nil {
		t.Fatalf("expected error for invalid")
	}
	if _, err := ParsePrimitiveType("q4_0"); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}

func TestRowMajor(t *testing.T) {
	t.Parallel()

	if got := RowMajor(4); !slices.Equal(got, []int64{3, 2, 1, 0}) {
		t.Fatalf("RowMajor(4) = %v", got)
	}
	if got := RowMajor(0); len(got) != 0 {
		t.Fatalf("RowMajor(0) = %v", got)
	}
}
