// Package cardreader talks to the card reader box: it polls for swiped
// cards and drives the reader's LEDs and buzzer.
//
// Reader protocol:
//
//	C            -> ID<10 digit card id>, or "ID" alone when no card is present
//	P<pattern>   -> OK   (LED pattern)
//	S<freq> <ms> -> OK   (sound)
//	I<percent>   -> OK   (LED intensity)
package cardreader
