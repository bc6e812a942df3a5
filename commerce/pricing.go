package commerce

// PriceTier names a quantity breakpoint of the price list.
type PriceTier string

const (
	Tier50  PriceTier = "50"
	Tier100 PriceTier = "100"
	Tier200 PriceTier = "200"
)

// TierForQuantity maps a line quantity to its price tier.
func TierForQuantity(qty int) PriceTier {
	switch {
	case qty >= 200:
		return Tier200
	case qty >= 100:
		return Tier100
	default:
		return Tier50
	}
}

// PriceForQuantity returns the per-unit price and tier for a line of qty
// units of p. The whole line is priced at the tier of the final quantity.
func PriceForQuantity(p *Product, qty int) (int64, PriceTier) {
	tier := TierForQuantity(qty)
	switch tier {
	case Tier200:
		return p.Precio200UCents, tier
	case Tier100:
		return p.Precio100UCents, tier
	default:
		return p.Precio50UCents, tier
	}
}
