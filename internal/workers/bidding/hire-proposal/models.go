package hireproposal

type Input struct {
	BidID   string `json:"bidId"`
	OwnerID string `json:"ownerId"`
}

type Output struct {
	BidID        string `json:"bidId"`
	GigID        string `json:"gigId"`
	FreelancerID string `json:"freelancerId"`
	BidStatus    string `json:"bidStatus"`
	GigStatus    string `json:"gigStatus"`
	HiredAt      string `json:"hiredAt"` // ISO 8601
}
