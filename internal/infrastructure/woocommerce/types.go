package woocommerce

// WooOrder is the wire shape of an order in the WooCommerce REST API (v3).
// Only the fields the sync pipeline consumes are declared.
type WooOrder struct {
	ID              int64         `json:"id"`
	Number          string        `json:"number"`
	Status          string        `json:"status"`
	Currency        string        `json:"currency"`
	Total           string        `json:"total"`
	CustomerID      int64         `json:"customer_id"`
	CustomerNote    string        `json:"customer_note"`
	DateCreatedGMT  string        `json:"date_created_gmt"`
	DateModifiedGMT string        `json:"date_modified_gmt"`
	Billing         WooBilling    `json:"billing"`
	Shipping        WooShipping   `json:"shipping"`
	LineItems       []WooLineItem `json:"line_items"`
}

// WooBilling is the billing block of a WooCommerce order
type WooBilling struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Address1  string `json:"address_1"`
	City      string `json:"city"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// WooShipping is the shipping block of a WooCommerce order
type WooShipping struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Address1  string `json:"address_1"`
	City      string `json:"city"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
	Phone     string `json:"phone"`
}

// WooLineItem is one order line in a WooCommerce order
type WooLineItem struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
	Total    string  `json:"total"`
}

// wooStatusUpdateRequest is the body for an order status update
type wooStatusUpdateRequest struct {
	Status string `json:"status"`
}

// wooErrorResponse is the error envelope WooCommerce returns on failures
type wooErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
