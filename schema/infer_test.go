package schema

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func rawValue(t *testing.T, v any) bson.RawValue {
	t.Helper()
	data, err := bson.Marshal(bson.D{{Key: "v", Value: v}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	val, err := bson.Raw(data).LookupErr("v")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	return val
}

func TestInferScalar(t *testing.T) {
	midnight := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	afternoon := time.Date(2024, 3, 1, 15, 4, 5, 0, time.UTC)

	tests := []struct {
		name string
		val  any
		want TypeID
	}{
		{"string", "hello", Varchar},
		{"int32", int32(42), BigInt},
		{"int64", int64(42), BigInt},
		{"double", 2.5, Double},
		{"decimal128", mustDecimal128(t, "1.5"), Double},
		{"bool", true, Boolean},
		{"date midnight", primitive.NewDateTimeFromTime(midnight), Date},
		{"date with time", primitive.NewDateTimeFromTime(afternoon), Timestamp},
		{"objectid", primitive.NewObjectID(), Varchar},
		{"binary", primitive.Binary{Data: []byte{1, 2}}, Blob},
		{"null", nil, Varchar},
		{"nested doc", bson.D{{Key: "a", Value: 1}}, Varchar},
		{"array", bson.A{1, 2}, Varchar},
		{"regex", primitive.Regex{Pattern: "a"}, Varchar},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InferScalar(rawValue(t, tt.val))
			if got.ID != tt.want {
				t.Errorf("InferScalar(%v) = %v, want type id %v", tt.val, got, tt.want)
			}
		})
	}
}

func mustDecimal128(t *testing.T, s string) primitive.Decimal128 {
	t.Helper()
	d, err := primitive.ParseDecimal128(s)
	if err != nil {
		t.Fatalf("parse decimal: %v", err)
	}
	return d
}

func TestResolve(t *testing.T) {
	v := Type{ID: Varchar}
	b := Type{ID: BigInt}
	d := Type{ID: Double}
	bl := Type{ID: Boolean}
	ts := Type{ID: Timestamp}

	tests := []struct {
		name    string
		samples []Type
		want    Type
	}{
		{"empty", nil, v},
		{"all same", []Type{b, b, b}, b},
		{"list wins", []Type{v, ListOf(b), v}, ListOf(b)},
		{"deepest list wins", []Type{ListOf(b), ListOf(ListOf(v))}, ListOf(ListOf(v))},
		{"struct wins over scalars", []Type{v, StructOf(Field{Name: "a", Type: v})}, StructOf(Field{Name: "a", Type: v})},
		{"varchar strong majority", []Type{v, v, v, v, b}, v},
		{"double at thirty percent", []Type{d, b, b}, d},
		{"mixed numeric prefers double", []Type{b, d}, d},
		{"bigint plurality", []Type{b, b, v}, b},
		{"boolean needs seventy", []Type{bl, bl, bl, v}, bl},
		{"boolean minority still beats varchar", []Type{bl, v, v}, bl},
		{"timestamp majority", []Type{ts, ts, ts, v}, ts},
		{"fallback varchar", []Type{v, {ID: Date}}, v},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveType(tt.samples)
			if !got.Equal(tt.want) {
				t.Errorf("ResolveType(%v) = %v, want %v", tt.samples, got, tt.want)
			}
		})
	}
}

func TestResolveVarcharExactlySeventyIsNotEnough(t *testing.T) {
	// 7 of 10 is not strictly greater than 70%.
	samples := []Type{}
	for i := 0; i < 7; i++ {
		samples = append(samples, Type{ID: Varchar})
	}
	for i := 0; i < 3; i++ {
		samples = append(samples, Type{ID: BigInt})
	}
	got := ResolveType(samples)
	if got.ID != BigInt {
		t.Errorf("ResolveType = %v, want BIGINT (varchar at exactly 70%% does not win)", got)
	}
}

func TestParseType(t *testing.T) {
	tests := []struct {
		in   string
		want Type
	}{
		{"VARCHAR", Type{ID: Varchar}},
		{"varchar", Type{ID: Varchar}},
		{"Text", Type{ID: Varchar}},
		{"BIGINT", Type{ID: BigInt}},
		{"HUGEINT", Type{ID: HugeInt}},
		{"DOUBLE", Type{ID: Double}},
		{"BOOL", Type{ID: Boolean}},
		{"DATE", Type{ID: Date}},
		{"TIMESTAMP", Type{ID: Timestamp}},
		{"BLOB", Type{ID: Blob}},
		{"LIST(BIGINT)", ListOf(Type{ID: BigInt})},
		{"LIST(LIST(VARCHAR))", ListOf(ListOf(Type{ID: Varchar}))},
		{"STRUCT(city VARCHAR, zip VARCHAR)", StructOf(
			Field{Name: "city", Type: Type{ID: Varchar}},
			Field{Name: "zip", Type: Type{ID: Varchar}},
		)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseType(tt.in)
			if err != nil {
				t.Fatalf("ParseType(%q): %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseType(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}

	if _, err := ParseType("NOPE"); err == nil {
		t.Error("ParseType(NOPE) succeeded, want error")
	}
}

func TestTypeString(t *testing.T) {
	nested := ListOf(StructOf(Field{Name: "qty", Type: Type{ID: BigInt}}))
	if got := nested.String(); got != "LIST(STRUCT(qty BIGINT))" {
		t.Errorf("String() = %q", got)
	}
}

func TestListDepth(t *testing.T) {
	if d := ListOf(ListOf(Type{ID: BigInt})).ListDepth(); d != 2 {
		t.Errorf("ListDepth = %d, want 2", d)
	}
	if d := (Type{ID: Varchar}).ListDepth(); d != 0 {
		t.Errorf("ListDepth = %d, want 0", d)
	}
}
