// Package mapper declares typed document kinds and maps them onto a
// store.Store.
//
// A Kind is an immutable, ordered set of FieldSpecs bound to a collection:
//
//	address := mapper.NewKind("addresses", []mapper.FieldSpec{
//		mapper.Field(mapper.String, "city", mapper.Required()),
//	})
//	users := mapper.NewKind("users", []mapper.FieldSpec{
//		mapper.AutoIncrementField("number", "users"),
//		mapper.Field(mapper.String, "name", mapper.Required()),
//		mapper.Field(mapper.Int, "age", mapper.Default(int64(0))),
//		mapper.NestedField(address, "address"),
//	})
//
// Documents are built from raw maps with Kind.New or Manager.New. Construction
// coerces declared fields to their types and runs validation, but never fails
// on validation errors; Save does. Save allocates auto-increment values from
// the sequence allocator before upserting.
//
// Hooks (validate, before/after save, before/after delete) are set per kind
// with KindOptions and may be overridden per document with the On* methods.
package mapper
