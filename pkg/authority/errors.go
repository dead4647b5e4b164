package authority

import "errors"

var (
	// ErrUnknownCard is returned when the authority does not recognise a card.
	// The card is denied; this is not a failure of the service.
	ErrUnknownCard = errors.New("unknown card")

	// ErrService is returned when the authority could not be asked, or
	// answered with anything but success or 404.
	ErrService = errors.New("card authority unavailable")
)
