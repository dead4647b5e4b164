// Package serialport provides the line-oriented transport shared by the
// lock, panel and card reader links.
//
// All three peripherals speak newline-terminated ASCII over a serial port.
// A Conn writes one command line and reads reply lines with an explicit
// per-line deadline, so a silent device surfaces as ErrCommsTimeout instead
// of a hung controller. The underlying Port must return from Read
// periodically (a serial read timeout) for the deadline to be observed.
package serialport
