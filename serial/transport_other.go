//go:build !linux

package serial

import (
	"net"

	"github.com/kpfaulkner/pixmap-go/imgerr"
)

func SendParcel(conn *net.UnixConn, p *Parcel) error {
	return imgerr.New(imgerr.IoAbnormal, "send parcel", "descriptor passing is not supported on this platform")
}

func ReceiveParcel(conn *net.UnixConn) (*Parcel, error) {
	return nil, imgerr.New(imgerr.IoAbnormal, "receive parcel", "descriptor passing is not supported on this platform")
}

func Pipe() (*net.UnixConn, *net.UnixConn, error) {
	return nil, nil, imgerr.New(imgerr.IoAbnormal, "socketpair", "descriptor passing is not supported on this platform")
}
