package card

// Cards is the response envelope for hub cards requests.
type Cards struct {
	Cards []Card `json:"cards"`
}

// NewCards wraps cards, never producing a null list.
func NewCards(cards ...Card) Cards {
	if cards == nil {
		cards = []Card{}
	}
	return Cards{Cards: cards}
}

// BotObject is a card rendered by the hub's bot surface.
type BotObject struct {
	ItemDetails Card `json:"itemDetails"`
}

// BotObjects is the response envelope for bot requests.
type BotObjects struct {
	Objects []BotObject `json:"objects"`
}

// NewBotObjects wraps each card as a bot object.
func NewBotObjects(cards ...Card) BotObjects {
	objects := make([]BotObject, 0, len(cards))
	for _, c := range cards {
		objects = append(objects, BotObject{ItemDetails: c})
	}
	return BotObjects{Objects: objects}
}

// BackendIDs returns the backend correlation ids of cards and their children,
// in document order.
func BackendIDs(cards []Card) []string {
	var ids []string
	for _, c := range cards {
		if c.BackendID != "" {
			ids = append(ids, c.BackendID)
		}
		ids = append(ids, BackendIDs(c.Children)...)
	}
	return ids
}
