package schema

import (
	"time"

	"github.com/relloyd/sunglass-etl/stream"
)

// User is a store customer.
type User struct {
	UserID       int64     `mapstructure:"user_id"`
	FirstName    string    `mapstructure:"first_name"`
	LastName     string    `mapstructure:"last_name"`
	Email        string    `mapstructure:"email"`
	Age          int64     `mapstructure:"age"`
	Gender       string    `mapstructure:"gender"`
	PostCode     string    `mapstructure:"post_code"`
	Country      string    `mapstructure:"country"`
	JoinDate     time.Time `mapstructure:"join_date"`
	FromPlatform string    `mapstructure:"from_platform"`
}

func (u *User) Record() stream.Record {
	r := stream.NewRecord()
	r.SetData("user_id", u.UserID)
	r.SetData("first_name", u.FirstName)
	r.SetData("last_name", u.LastName)
	r.SetData("email", u.Email)
	r.SetData("age", u.Age)
	r.SetData("gender", u.Gender)
	r.SetData("post_code", u.PostCode)
	r.SetData("country", u.Country)
	r.SetData("join_date", u.JoinDate)
	r.SetData("from_platform", u.FromPlatform)
	return r
}

// Product is a pair of sunglasses in the catalogue.
type Product struct {
	ItemID            int64      `mapstructure:"item_id"`
	Brand             string     `mapstructure:"brand"`
	ProductName       string     `mapstructure:"product_name"`
	EyeSize           float64    `mapstructure:"eye_size"`
	LensColor         string     `mapstructure:"lens_color"`
	Price             float64    `mapstructure:"price"`
	PolarizedGlasses  bool       `mapstructure:"polarized_glasses"`
	PrescribedGlasses bool       `mapstructure:"prescribed_glasses"`
	IsActive          string     `mapstructure:"is_active"`
	ListDate          time.Time  `mapstructure:"list_date"`
	DiscontinuedDate  *time.Time `mapstructure:"discontinued_date"`
}

func (p *Product) Record() stream.Record {
	r := stream.NewRecord()
	r.SetData("item_id", p.ItemID)
	r.SetData("brand", p.Brand)
	r.SetData("product_name", p.ProductName)
	r.SetData("eye_size", p.EyeSize)
	r.SetData("lens_color", p.LensColor)
	r.SetData("price", p.Price)
	r.SetData("polarized_glasses", p.PolarizedGlasses)
	r.SetData("prescribed_glasses", p.PrescribedGlasses)
	r.SetData("is_active", p.IsActive)
	r.SetData("list_date", p.ListDate)
	r.SetData("discontinued_date", optionalTime(p.DiscontinuedDate))
	return r
}

// Order is a purchase of one item by one user.
type Order struct {
	OrderID      int64     `mapstructure:"order_id"`
	UserID       int64     `mapstructure:"user_id"`
	ItemID       int64     `mapstructure:"item_id"`
	PurchaseDate time.Time `mapstructure:"purchase_date"`
	PaymentType  string    `mapstructure:"payment_type"`
}

func (o *Order) Record() stream.Record {
	r := stream.NewRecord()
	r.SetData("order_id", o.OrderID)
	r.SetData("user_id", o.UserID)
	r.SetData("item_id", o.ItemID)
	r.SetData("purchase_date", o.PurchaseDate)
	r.SetData("payment_type", o.PaymentType)
	return r
}

// Interaction is a user touching a product, e.g. a view or a wishlist add.
type Interaction struct {
	InteractionID   int64     `mapstructure:"interaction_id"`
	UserID          int64     `mapstructure:"user_id"`
	ItemID          int64     `mapstructure:"item_id"`
	InteractionDate time.Time `mapstructure:"interaction_date"`
	InteractionType *string   `mapstructure:"interaction_type"`
}

func (i *Interaction) Record() stream.Record {
	r := stream.NewRecord()
	r.SetData("interaction_id", i.InteractionID)
	r.SetData("user_id", i.UserID)
	r.SetData("item_id", i.ItemID)
	r.SetData("interaction_date", i.InteractionDate)
	r.SetData("interaction_type", optionalString(i.InteractionType))
	return r
}

// InteractionType is a reference row describing an interaction id.
type InteractionType struct {
	ID              int64  `mapstructure:"id"`
	InteractionType string `mapstructure:"interaction_type"`
}

func (t *InteractionType) Record() stream.Record {
	r := stream.NewRecord()
	r.SetData("id", t.ID)
	r.SetData("interaction_type", t.InteractionType)
	return r
}
