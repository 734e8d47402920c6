package models

// Stats is the admin dashboard summary.
type Stats struct {
	Registrations   int64                   `json:"registrations"`
	ByPaymentStatus map[PaymentStatus]int64 `json:"byPaymentStatus"`
	TicketsIssued   int64                   `json:"ticketsIssued"`
	AdmissionsByDay map[int]int64           `json:"admissionsByDay"`
	FriendReferrals int64                   `json:"friendReferrals"`
	RevenueVerified int64                   `json:"revenueVerified"`
}
