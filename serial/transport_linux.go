//go:build linux

package serial

import (
	"encoding/binary"
	"io"
	"net"
	"os"

	"github.com/kpfaulkner/pixmap-go/imgerr"
	"github.com/kpfaulkner/pixmap-go/pxio"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

const (
	frameHeaderSize = 8

	// MaxParcelFds bounds the descriptors one parcel may carry.
	MaxParcelFds = 16

	// MaxParcelData bounds the inline payload of one parcel.
	MaxParcelData = InlineThreshold * 1024
)

// SendParcel writes p as one frame: data length u32, descriptor count u32 and
// the data, with the descriptors attached as SCM_RIGHTS.
func SendParcel(conn *net.UnixConn, p *Parcel) error {
	data := p.Data()
	fds := p.Fds()
	if len(fds) > MaxParcelFds {
		return imgerr.New(imgerr.InvalidParameter, "send parcel", "%d descriptors exceed %d", len(fds), MaxParcelFds)
	}
	frame := make([]byte, frameHeaderSize+len(data))
	binary.LittleEndian.PutUint32(frame[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(frame[4:], uint32(len(fds)))
	copy(frame[frameHeaderSize:], data)

	var oob []byte
	if len(fds) > 0 {
		oob = unix.UnixRights(fds...)
	}
	n, oobn, err := conn.WriteMsgUnix(frame, oob, nil)
	if err != nil {
		return imgerr.Wrap(imgerr.IoAbnormal, "send parcel", err)
	}
	if oobn != len(oob) {
		return imgerr.New(imgerr.IoAbnormal, "send parcel", "sent %d of %d control bytes", oobn, len(oob))
	}
	if n < len(frame) {
		if _, err := conn.Write(frame[n:]); err != nil {
			return imgerr.Wrap(imgerr.IoAbnormal, "send parcel", err)
		}
	}
	return nil
}

// ReceiveParcel reads one frame written by SendParcel. The returned parcel
// owns the received descriptors.
func ReceiveParcel(conn *net.UnixConn) (*Parcel, error) {
	head := make([]byte, frameHeaderSize)
	oob := make([]byte, unix.CmsgSpace(MaxParcelFds*4))
	n, oobn, flags, _, err := conn.ReadMsgUnix(head, oob)
	if err != nil {
		return nil, imgerr.Wrap(imgerr.IoAbnormal, "receive parcel", err)
	}
	fds, err := parseRights(oob[:oobn])
	if err != nil {
		return nil, err
	}
	p := NewParcelFrom(nil, fds)

	if n < frameHeaderSize {
		if _, err := io.ReadFull(conn, head[n:]); err != nil {
			p.Close()
			return nil, imgerr.Wrap(imgerr.IoAbnormal, "receive parcel", err)
		}
	}
	size := binary.LittleEndian.Uint32(head[0:])
	count := binary.LittleEndian.Uint32(head[4:])
	if flags&unix.MSG_CTRUNC != 0 {
		// the kernel closed the descriptors that did not fit
		p.Close()
		if size <= MaxParcelData {
			if _, err := io.CopyN(io.Discard, conn, int64(size)); err != nil {
				return nil, imgerr.Wrap(imgerr.IoAbnormal, "receive parcel", err)
			}
		}
		log.Errorf("receive parcel: control message truncated, frame declared %d descriptors", count)
		return nil, imgerr.New(imgerr.Malformed, "receive parcel", "control message truncated with %d of %d descriptors", len(fds), count)
	}
	if int(count) != len(fds) {
		p.Close()
		return nil, imgerr.New(imgerr.Malformed, "receive parcel", "frame declares %d descriptors, received %d", count, len(fds))
	}
	if size > MaxParcelData {
		p.Close()
		return nil, imgerr.New(imgerr.Malformed, "receive parcel", "frame of %d bytes exceeds %d", size, MaxParcelData)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(conn, data); err != nil {
		p.Close()
		return nil, imgerr.Wrap(imgerr.IoAbnormal, "receive parcel", err)
	}
	p.c = pxio.NewCursor(data)
	return p, nil
}

func parseRights(oob []byte) ([]int, error) {
	if len(oob) == 0 {
		return nil, nil
	}
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, imgerr.Rekind(imgerr.Malformed, "receive parcel", err)
	}
	var fds []int
	for i := range msgs {
		rights, err := unix.ParseUnixRights(&msgs[i])
		if err != nil {
			log.Warnf("receive parcel: ignoring control message: %v", err)
			continue
		}
		fds = append(fds, rights...)
	}
	return fds, nil
}

// Pipe returns a connected pair of unix stream sockets.
func Pipe() (*net.UnixConn, *net.UnixConn, error) {
	pair, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, imgerr.Wrap(imgerr.IoAbnormal, "socketpair", err)
	}
	a, err := fileConn(pair[0], "parcel-a")
	if err != nil {
		unix.Close(pair[1])
		return nil, nil, err
	}
	b, err := fileConn(pair[1], "parcel-b")
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return a, b, nil
}

func fileConn(fd int, name string) (*net.UnixConn, error) {
	f := os.NewFile(uintptr(fd), name)
	defer f.Close()
	c, err := net.FileConn(f)
	if err != nil {
		return nil, imgerr.Wrap(imgerr.IoAbnormal, "socketpair", err)
	}
	uc, ok := c.(*net.UnixConn)
	if !ok {
		c.Close()
		return nil, imgerr.New(imgerr.IoAbnormal, "socketpair", "unexpected connection type %T", c)
	}
	return uc, nil
}
