package servicenow

import (
	"bytes"
	"encoding/json"
)

// Catalog is one entry of the service catalog listing.
type Catalog struct {
	SysID string `json:"sys_id"`
	Title string `json:"title"`
}

type catalogsResult struct {
	Result []Catalog `json:"result"`
}

type Category struct {
	SysID string `json:"sys_id"`
	Title string `json:"title"`
}

type categoriesResult struct {
	Result struct {
		Categories []Category `json:"categories"`
	} `json:"result"`
}

// CatalogItem is an orderable item within a category.
type CatalogItem struct {
	SysID            string `json:"sys_id"`
	Name             string `json:"name"`
	ShortDescription string `json:"short_description"`
	Picture          string `json:"picture"`
}

type catalogItemsResult struct {
	Result []CatalogItem `json:"result"`
}

// CartItem is one line of the caller's cart.
type CartItem struct {
	EntryID          string       `json:"entry_id"`
	Name             string       `json:"name"`
	ShortDescription string       `json:"short_description"`
	Picture          string       `json:"picture"`
	Quantity         displayValue `json:"quantity"`
}

// Cart is the caller's current cart. Backends return it either as a single
// object or as a list of per-catalog carts; both collapse into one Cart.
type Cart struct {
	CartID   string     `json:"cart_id"`
	Subtotal string     `json:"subtotal"`
	Items    []CartItem `json:"items"`
}

type cartResult struct {
	Result Cart `json:"result"`
}

func (c *Cart) UnmarshalJSON(raw []byte) error {
	type plain Cart
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var carts []plain
		if err := json.Unmarshal(raw, &carts); err != nil {
			return err
		}
		*c = Cart{}
		for _, p := range carts {
			if c.CartID == "" {
				c.CartID = p.CartID
				c.Subtotal = p.Subtotal
			}
			c.Items = append(c.Items, p.Items...)
		}
		return nil
	}
	var p plain
	if err := json.Unmarshal(raw, &p); err != nil {
		return err
	}
	*c = Cart(p)
	return nil
}

// Task is a row of the task table read with sysparm_display_value=true.
type Task struct {
	SysID            string       `json:"sys_id"`
	Number           string       `json:"number"`
	ShortDescription string       `json:"short_description"`
	State            displayValue `json:"state"`
	Priority         displayValue `json:"priority"`
	OpenedAt         string       `json:"opened_at"`
	AssignedTo       displayValue `json:"assigned_to"`
}

type tasksResult struct {
	Result []Task `json:"result"`
}

type checkoutResult struct {
	Result struct {
		RequestNumber string `json:"request_number"`
		RequestID     string `json:"request_id"`
	} `json:"result"`
}

type createTaskResult struct {
	Result struct {
		Number string `json:"number"`
		SysID  string `json:"sys_id"`
	} `json:"result"`
}

type errorResult struct {
	Error struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	} `json:"error"`
}

// displayValue accepts the plain strings and the {display_value, link}
// objects the table API returns for choice and reference fields.
type displayValue string

func (d *displayValue) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		*d = ""
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		*d = displayValue(s)
	case raw[0] == '{':
		var ref struct {
			DisplayValue string `json:"display_value"`
		}
		if err := json.Unmarshal(raw, &ref); err != nil {
			return err
		}
		*d = displayValue(ref.DisplayValue)
	default:
		*d = displayValue(raw)
	}
	return nil
}

func (d displayValue) String() string { return string(d) }
