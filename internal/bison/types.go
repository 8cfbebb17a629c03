package bison

// Reply is one interested reply as returned by the platform's replies
// endpoint. Only the fields the sync pipeline consumes are mapped.
type Reply struct {
	ID               int64  `json:"id"`
	UUID             string `json:"uuid,omitempty"`
	FromName         string `json:"from_name,omitempty"`
	FromEmailAddress string `json:"from_email_address,omitempty"`
	DateReceived     string `json:"date_received,omitempty"`
	LeadID           int64  `json:"lead_id,omitempty"`
}

// repliesPage is the paginated envelope around Reply.
type repliesPage struct {
	Data []Reply `json:"data"`
	Meta struct {
		CurrentPage int `json:"current_page"`
		LastPage    int `json:"last_page"`
		Total       int `json:"total"`
	} `json:"meta"`
}

// RepliesResult carries the outcome of one workspace pull. Partial is true
// when a page beyond the first failed and the result covers only the pages
// fetched before the failure.
type RepliesResult struct {
	Replies []Reply
	Pages   int
	Partial bool
}

type switchWorkspaceRequest struct {
	TeamID int64 `json:"team_id"`
}
