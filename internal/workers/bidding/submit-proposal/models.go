package submitproposal

type Input struct {
	GigID    string `json:"gigId"`
	BidderID string `json:"bidderId"`
	Message  string `json:"message"`
	Price    int64  `json:"price"`
}

type Output struct {
	BidID     string `json:"bidId"`
	GigID     string `json:"gigId"`
	BidStatus string `json:"bidStatus"`
	CreatedAt string `json:"createdAt"` // ISO 8601
}
