package constants

const (
	ViewData      = "view_data"
	SubmitAction  = "submit_action"
	ReviewAction  = "review_action"
	ClaimAction   = "claim_action"
	CreateListing = "create_listing"
	CancelListing = "cancel_listing"
	SignRequests  = "sign_requests"
	ManageRounds  = "manage_rounds"
	Reconcile     = "reconcile"
)
