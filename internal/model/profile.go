package model

// Buyer is the public profile of a marketplace user
type Buyer struct {
	ID             string `json:"_id"`
	Username       string `json:"username"`
	Email          string `json:"email,omitempty"`
	ProfilePicture string `json:"profilePicture"`
	Country        string `json:"country,omitempty"`
	IsSeller       bool   `json:"isSeller"`
}

// Gig is a sellable service listing
type Gig struct {
	ID          string  `json:"_id"`
	SellerID    string  `json:"sellerId"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price"`
}

// AuthUser is the identity of the signed-in user
type AuthUser struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profilePicture"`
}

// Seller is the seller profile of the signed-in user, if any
type Seller struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
}
