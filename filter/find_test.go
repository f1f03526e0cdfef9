package filter

import (
	"reflect"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/hugr-lab/mongoport-go/schema"
)

func testSchema() *schema.Schema {
	return &schema.Schema{Columns: []schema.Column{
		{Name: "_id", Type: schema.Type{ID: schema.Varchar}, Path: "_id"},
		{Name: "status", Type: schema.Type{ID: schema.Varchar}, Path: "status"},
		{Name: "qty", Type: schema.Type{ID: schema.BigInt}, Path: "qty"},
		{Name: "addr_city", Type: schema.Type{ID: schema.Varchar}, Path: "addr.city"},
		{Name: "customer", Type: schema.StructOf(
			schema.Field{Name: "name", Type: schema.Type{ID: schema.Varchar}},
		), Path: "customer"},
		{Name: "items", Type: schema.ListOf(schema.StructOf(
			schema.Field{Name: "sku", Type: schema.Type{ID: schema.Varchar}},
		)), Path: "items"},
	}}
}

func TestEncodeFindComparisons(t *testing.T) {
	s := testSchema()
	tests := []struct {
		name   string
		filter TableFilter
		colIdx int
		want   bson.D
	}{
		{
			"equality is a bare value",
			&ConstantFilter{Op: TypeCompareEqual, Value: StringValue("A")},
			1,
			bson.D{{Key: "status", Value: "A"}},
		},
		{
			"greater than",
			&ConstantFilter{Op: TypeCompareGreaterThan, Value: Int64Value(5)},
			2,
			bson.D{{Key: "qty", Value: bson.D{{Key: "$gt", Value: int64(5)}}}},
		},
		{
			"not equal",
			&ConstantFilter{Op: TypeCompareNotEqual, Value: Int64Value(5)},
			2,
			bson.D{{Key: "qty", Value: bson.D{{Key: "$ne", Value: int64(5)}}}},
		},
		{
			"is null",
			&IsNullFilter{},
			1,
			bson.D{{Key: "status", Value: nil}},
		},
		{
			"is not null",
			&IsNotNullFilter{},
			1,
			bson.D{{Key: "status", Value: bson.D{{Key: "$ne", Value: nil}}}},
		},
		{
			"in set",
			&InFilter{Values: []Value{StringValue("A"), StringValue("B")}},
			1,
			bson.D{{Key: "status", Value: bson.D{{Key: "$in", Value: bson.A{"A", "B"}}}}},
		},
		{
			"nested path from path map",
			&ConstantFilter{Op: TypeCompareEqual, Value: StringValue("X")},
			3,
			bson.D{{Key: "addr.city", Value: "X"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EncodeFind(map[int]TableFilter{tt.colIdx: tt.filter}, s)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("EncodeFind = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEncodeFindEmptyInIsSkipped(t *testing.T) {
	got := EncodeFind(map[int]TableFilter{1: &InFilter{}}, testSchema())
	if len(got) != 0 {
		t.Errorf("empty IN produced %v, want empty filter", got)
	}
}

func TestEncodeFindSameColumnRangeMerges(t *testing.T) {
	s := testSchema()
	f := &AndFilter{Children: []TableFilter{
		&ConstantFilter{Op: TypeCompareGreaterThan, Value: Int64Value(1)},
		&ConstantFilter{Op: TypeCompareLessThan, Value: Int64Value(9)},
	}}
	got := EncodeFind(map[int]TableFilter{2: f}, s)
	want := bson.D{{Key: "qty", Value: bson.D{
		{Key: "$gt", Value: int64(1)},
		{Key: "$lt", Value: int64(9)},
	}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("merged range = %v, want %v", got, want)
	}
}

func TestEncodeFindOrFoldsToIn(t *testing.T) {
	// WHERE status = 'A' OR status = 'B'
	s := testSchema()
	f := &OrFilter{Children: []TableFilter{
		&ConstantFilter{Op: TypeCompareEqual, Value: StringValue("A")},
		&ConstantFilter{Op: TypeCompareEqual, Value: StringValue("B")},
	}}
	got := EncodeFind(map[int]TableFilter{1: f}, s)
	want := bson.D{{Key: "status", Value: bson.D{{Key: "$in", Value: bson.A{"A", "B"}}}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("OR fold = %v, want %v", got, want)
	}
}

func TestEncodeFindMixedOrStaysOr(t *testing.T) {
	s := testSchema()
	f := &OrFilter{Children: []TableFilter{
		&ConstantFilter{Op: TypeCompareEqual, Value: Int64Value(1)},
		&ConstantFilter{Op: TypeCompareGreaterThan, Value: Int64Value(5)},
	}}
	got := EncodeFind(map[int]TableFilter{2: f}, s)
	want := bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "qty", Value: int64(1)}},
		bson.D{{Key: "qty", Value: bson.D{{Key: "$gt", Value: int64(5)}}}},
	}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("mixed OR = %v, want %v", got, want)
	}
}

func TestEncodeFindMultipleColumnsWrapInAnd(t *testing.T) {
	s := testSchema()
	got := EncodeFind(map[int]TableFilter{
		1: &ConstantFilter{Op: TypeCompareEqual, Value: StringValue("A")},
		2: &ConstantFilter{Op: TypeCompareGreaterThan, Value: Int64Value(5)},
	}, s)
	want := bson.D{{Key: "$and", Value: bson.A{
		bson.D{{Key: "status", Value: "A"}},
		bson.D{{Key: "qty", Value: bson.D{{Key: "$gt", Value: int64(5)}}}},
	}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("multi-column = %v, want %v", got, want)
	}
}

func TestEncodeFindStructFieldPath(t *testing.T) {
	s := testSchema()
	f := &StructFilter{
		ChildName: "name",
		Child:     &ConstantFilter{Op: TypeCompareEqual, Value: StringValue("Ann")},
	}
	got := EncodeFind(map[int]TableFilter{4: f}, s)
	want := bson.D{{Key: "customer.name", Value: "Ann"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("struct path = %v, want %v", got, want)
	}
}

func TestEncodeFindListOfStructUsesElemMatch(t *testing.T) {
	s := testSchema()
	f := &StructFilter{
		ChildName: "sku",
		Child:     &ConstantFilter{Op: TypeCompareEqual, Value: StringValue("s1")},
	}
	got := EncodeFind(map[int]TableFilter{5: f}, s)
	want := bson.D{{Key: "items", Value: bson.D{{Key: "$elemMatch", Value: bson.D{{Key: "sku", Value: "s1"}}}}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("elemMatch = %v, want %v", got, want)
	}
}

func TestEncodeFindObjectIDCoercion(t *testing.T) {
	s := testSchema()
	hex := "507f1f77bcf86cd799439011"
	oid, _ := primitive.ObjectIDFromHex(hex)

	got := EncodeFind(map[int]TableFilter{
		0: &ConstantFilter{Op: TypeCompareEqual, Value: StringValue(hex)},
	}, s)
	want := bson.D{{Key: "_id", Value: oid}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("_id coercion = %v, want native ObjectId", got)
	}

	// Non-hex strings stay strings.
	got = EncodeFind(map[int]TableFilter{
		0: &ConstantFilter{Op: TypeCompareEqual, Value: StringValue("plain")},
	}, s)
	want = bson.D{{Key: "_id", Value: "plain"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("non-hex _id = %v, want string compare", got)
	}
}

func TestIsObjectIDPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"_id", true},
		{"customer._id", true},
		{"customer_id", true},
		{"status", false},
		{"id", false},
		{"_idx", false},
	}
	for _, tt := range tests {
		if got := isObjectIDPath(tt.path); got != tt.want {
			t.Errorf("isObjectIDPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestEncodeFindDynamicFilter(t *testing.T) {
	s := testSchema()
	inner := &ConstantFilter{Op: TypeCompareLessThan, Value: Int64Value(10)}

	got := EncodeFind(map[int]TableFilter{2: &DynamicFilter{Child: inner}}, s)
	if len(got) != 0 {
		t.Errorf("uninitialized dynamic filter produced %v, want nothing", got)
	}

	got = EncodeFind(map[int]TableFilter{2: &DynamicFilter{Initialized: true, Child: inner}}, s)
	want := bson.D{{Key: "qty", Value: bson.D{{Key: "$lt", Value: int64(10)}}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("initialized dynamic filter = %v, want %v", got, want)
	}
}

func TestEncodeFindOptionalFilterUnwraps(t *testing.T) {
	s := testSchema()
	got := EncodeFind(map[int]TableFilter{
		1: &OptionalFilter{Child: &InFilter{Values: []Value{StringValue("A")}}},
	}, s)
	want := bson.D{{Key: "status", Value: bson.D{{Key: "$in", Value: bson.A{"A"}}}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("optional filter = %v, want %v", got, want)
	}
}

func TestEncodeFindIsIdempotent(t *testing.T) {
	s := testSchema()
	filters := map[int]TableFilter{
		1: &OrFilter{Children: []TableFilter{
			&ConstantFilter{Op: TypeCompareEqual, Value: StringValue("A")},
			&ConstantFilter{Op: TypeCompareEqual, Value: StringValue("B")},
		}},
		2: &AndFilter{Children: []TableFilter{
			&ConstantFilter{Op: TypeCompareGreaterThan, Value: Int64Value(1)},
			&ConstantFilter{Op: TypeCompareLessThan, Value: Int64Value(9)},
		}},
	}
	first := EncodeFind(filters, s)
	second := EncodeFind(filters, s)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("EncodeFind not idempotent:\n%v\n%v", first, second)
	}

	a, err := bson.Marshal(first)
	if err != nil {
		t.Fatal(err)
	}
	b, err := bson.Marshal(second)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("marshaled BSON differs between runs")
	}
}

func TestEncodeFindDateConstants(t *testing.T) {
	s := &schema.Schema{Columns: []schema.Column{
		{Name: "d", Type: schema.Type{ID: schema.Date}, Path: "d"},
		{Name: "ts", Type: schema.Type{ID: schema.Timestamp}, Path: "ts"},
	}}
	got := EncodeFind(map[int]TableFilter{
		0: &ConstantFilter{Op: TypeCompareEqual, Value: DateValue(19783)},
		1: &ConstantFilter{Op: TypeCompareGreaterThan, Value: TimestampValue(1_709_294_400_000_000)},
	}, s)
	want := bson.D{{Key: "$and", Value: bson.A{
		bson.D{{Key: "d", Value: primitive.DateTime(19783 * 86_400_000)}},
		bson.D{{Key: "ts", Value: bson.D{{Key: "$gt", Value: primitive.DateTime(1_709_294_400_000)}}}},
	}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("date constants = %v, want %v", got, want)
	}
}
