package schema

import (
	"sort"

	"github.com/relloyd/sunglass-etl/etlerr"
	"github.com/relloyd/sunglass-etl/helper"
)

// Table names.
const (
	TableUsers            = "users"
	TableProducts         = "products"
	TableOrders           = "orders"
	TableInteraction      = "interaction"
	TableInteractionTypes = "interaction_types"
)

var registry = map[string]*Definition{
	TableUsers: {
		Entity: "User",
		Table:  TableUsers,
		Key:    "user_id",
		Fields: []Field{
			{Name: "user_id", Kind: KindInt},
			{Name: "first_name", Kind: KindString},
			{Name: "last_name", Kind: KindString},
			{Name: "email", Kind: KindString},
			{Name: "age", Kind: KindInt, NonNegative: true},
			{Name: "gender", Kind: KindString},
			{Name: "post_code", Kind: KindString},
			{Name: "country", Kind: KindString},
			{Name: "join_date", Kind: KindDate},
			{Name: "from_platform", Kind: KindString},
		},
		newEntity: func() Entity { return &User{} },
	},
	TableProducts: {
		Entity: "Product",
		Table:  TableProducts,
		Key:    "item_id",
		Fields: []Field{
			{Name: "item_id", Kind: KindInt},
			{Name: "brand", Kind: KindString},
			{Name: "product_name", Kind: KindString},
			{Name: "eye_size", Kind: KindFloat, NonNegative: true},
			{Name: "lens_color", Kind: KindString},
			{Name: "price", Kind: KindFloat, NonNegative: true},
			{Name: "polarized_glasses", Kind: KindBool},
			{Name: "prescribed_glasses", Kind: KindBool},
			{Name: "is_active", Kind: KindString},
			{Name: "list_date", Kind: KindDate},
			{Name: "discontinued_date", Kind: KindDate, Optional: true},
		},
		newEntity: func() Entity { return &Product{} },
	},
	TableOrders: {
		Entity: "Order",
		Table:  TableOrders,
		Key:    "order_id",
		Fields: []Field{
			{Name: "order_id", Kind: KindInt},
			{Name: "user_id", Kind: KindInt},
			{Name: "item_id", Kind: KindInt},
			{Name: "purchase_date", Kind: KindDate},
			{Name: "payment_type", Kind: KindString},
		},
		newEntity: func() Entity { return &Order{} },
	},
	TableInteraction: {
		Entity: "Interaction",
		Table:  TableInteraction,
		Key:    "interaction_id",
		Fields: []Field{
			{Name: "interaction_id", Kind: KindInt},
			{Name: "user_id", Kind: KindInt},
			{Name: "item_id", Kind: KindInt},
			{Name: "interaction_date", Kind: KindDate},
			{Name: "interaction_type", Kind: KindString, Optional: true},
		},
		newEntity: func() Entity { return &Interaction{} },
	},
	TableInteractionTypes: {
		Entity: "InteractionType",
		Table:  TableInteractionTypes,
		Key:    "id",
		Fields: []Field{
			{Name: "id", Kind: KindInt},
			{Name: "interaction_type", Kind: KindString},
		},
		newEntity: func() Entity { return &InteractionType{} },
	},
}

var tableOrder = []string{TableUsers, TableProducts, TableOrders, TableInteraction, TableInteractionTypes}

// Lookup returns the definition for table. Names are normalised to snake_case first so "interactionTypes"
// resolves to the interaction_types table.
func Lookup(table string) (*Definition, error) {
	d, ok := registry[helper.ToSnakeCase(table)]
	if !ok {
		known := make([]string, 0, len(registry))
		for k := range registry {
			known = append(known, k)
		}
		sort.Strings(known)
		return nil, etlerr.NewConfigurationError("unknown table %q; expected one of %v", table, known)
	}
	return d, nil
}

// All returns every definition in load order.
func All() []*Definition {
	retval := make([]*Definition, len(tableOrder))
	for i, t := range tableOrder {
		retval[i] = registry[t]
	}
	return retval
}
