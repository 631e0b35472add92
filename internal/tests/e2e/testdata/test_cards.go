package testdata

// Sandbox test data. The sandbox gateway decides a charge's outcome from the
// last two digits of its minor-unit amount.
type TestCard struct {
	Number   string
	CVC      string
	ExpMonth int
	ExpYear  int
	Holder   string
}

var (
	ValidCard = TestCard{
		Number:   "4111111111111111",
		CVC:      "123",
		ExpMonth: 12,
		ExpYear:  2035,
		Holder:   "IVAN PETROV",
	}

	ExpiredCard = TestCard{
		Number:   "5105105105105100",
		CVC:      "321",
		ExpMonth: 3,
		ExpYear:  2020,
		Holder:   "IVAN PETROV",
	}
)

const (
	SucceedingAmount = "1000.00"
	DecliningAmount  = "1000.02"
	TimingOutAmount  = "1000.05"
	PendingAmount    = "1000.07"
)
