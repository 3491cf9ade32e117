package usbpanel

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"testing"

	"github.com/nerrad567/lcdcanvas/internal/screen"
)

type fakeConn struct {
	writes  [][]byte
	reads   []int
	reply   []byte
	zeroOut bool
	readErr error
	resets  int
	closed  bool
}

func (f *fakeConn) Write(_ context.Context, p []byte) (int, error) {
	if f.zeroOut {
		return 0, nil
	}
	f.writes = append(f.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (f *fakeConn) Read(_ context.Context, p []byte) (int, error) {
	f.reads = append(f.reads, len(p))
	if f.readErr != nil {
		return 0, f.readErr
	}
	return copy(p, f.reply), nil
}

func (f *fakeConn) Reset() error { f.resets++; return nil }
func (f *fakeConn) Close() error { f.closed = true; return nil }

func newPanel(conn *fakeConn) (*Panel, *int) {
	dials := 0
	p := New(Config{},
		WithDialer(func(cfg Config) (Conn, error) {
			dials++
			if conn == nil {
				return nil, errNotFound
			}
			return conn, nil
		}),
		WithProber(func(Config) bool { return conn != nil }),
	)
	return p, &dials
}

func TestBuildBlock_Layout(t *testing.T) {
	b := buildDisplay(0, 0, Width, Height)

	if len(b) != BlockSize {
		t.Fatalf("len = %d, want %d", len(b), BlockSize)
	}

	want := []byte{
		0x55, 0x53, 0x42, 0x43, // magic
		0xDE, 0xAD, 0xBE, 0xEF, // tag
		0x00, 0xB0, 0x04, 0x00, // 480*320*2 = 0x04B000
		0x00, 0x00, 0x10, 0xCD,
		0x00, 0x00, 0x00, 0x00,
		0x06, 0x12,
		0x00, 0x00, // x0
		0x00, 0x00, // y0
		0xDF, 0x01, // x1-1 = 479
		0x3F, 0x01, // y1-1 = 319
		0x00,
	}
	if !bytes.Equal(b, want) {
		t.Errorf("display block =\n% x\nwant\n% x", b, want)
	}
}

func TestBuildBrightness(t *testing.T) {
	tests := []struct {
		percent int
		want    byte
	}{
		{-10, 0},
		{0, 0},
		{50, 3},
		{99, 6},
		{100, 7},
		{150, 7},
	}

	for _, tt := range tests {
		conn := &fakeConn{}
		p, _ := newPanel(conn)
		if err := p.SetBrightness(tt.percent); err != nil {
			t.Fatalf("SetBrightness(%d) error = %v", tt.percent, err)
		}
		b := conn.writes[0]
		if len(b) != BlockSize {
			t.Fatalf("brightness block = %d bytes, want %d", len(b), BlockSize)
		}
		if b[20] != DirOut || b[21] != CmdBrightness || b[22] != 0x01 || b[23] != 0x00 || b[24] != tt.want {
			t.Errorf("SetBrightness(%d) block tail = % x, want level %d", tt.percent, b[20:25], tt.want)
		}
		if binary.LittleEndian.Uint32(b[8:12]) != 0 {
			t.Error("brightness block carries a payload length")
		}
		if len(conn.reads) != 1 || conn.reads[0] != AckSize {
			t.Errorf("ack reads = %v, want [%d]", conn.reads, AckSize)
		}
	}
}

func TestPanel_DisplaySequence(t *testing.T) {
	conn := &fakeConn{}
	p, dials := newPanel(conn)

	if err := p.Display(image.NewRGBA(image.Rect(0, 0, 100, 100))); err != nil {
		t.Fatalf("Display() error = %v", err)
	}

	if *dials != 1 {
		t.Errorf("dials = %d, want 1 (transparent open)", *dials)
	}
	if len(conn.writes) != 2 {
		t.Fatalf("writes = %d, want block + payload", len(conn.writes))
	}
	if len(conn.writes[0]) != BlockSize || conn.writes[0][21] != CmdDisplay {
		t.Errorf("first write = % x, want display block", conn.writes[0])
	}
	if len(conn.writes[1]) != Width*Height*2 {
		t.Errorf("payload = %d bytes, want %d", len(conn.writes[1]), Width*Height*2)
	}
	if len(conn.reads) != 1 || conn.reads[0] != AckSize {
		t.Errorf("ack reads = %v, want [%d]", conn.reads, AckSize)
	}
}

func TestPanel_ClearIsWhiteFrame(t *testing.T) {
	conn := &fakeConn{}
	p, _ := newPanel(conn)

	if err := p.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	payload := conn.writes[1]
	for i, b := range payload {
		if b != 0xFF {
			t.Fatalf("payload[%d] = %#x, want 0xff", i, b)
		}
	}
}

func TestPanel_ZeroWriteIsTransportError(t *testing.T) {
	conn := &fakeConn{zeroOut: true}
	p, _ := newPanel(conn)

	if err := p.Write([]byte{1, 2, 3}); !errors.Is(err, screen.ErrTransport) {
		t.Errorf("Write() error = %v, want ErrTransport", err)
	}
}

func TestPanel_AckFailure(t *testing.T) {
	conn := &fakeConn{readErr: errors.New("timeout")}
	p, _ := newPanel(conn)

	if err := p.SetBrightness(50); !errors.Is(err, screen.ErrTransport) {
		t.Errorf("SetBrightness() error = %v, want ErrTransport", err)
	}
}

func TestPanel_NotAttached(t *testing.T) {
	p, _ := newPanel(nil)

	if p.Probe() {
		t.Error("Probe() = true for detached panel")
	}
	p.Open()
	if p.IsOpen() {
		t.Error("IsOpen() = true after failed Open()")
	}
	if err := p.Display(image.NewRGBA(image.Rect(0, 0, Width, Height))); !errors.Is(err, screen.ErrTransport) {
		t.Errorf("Display() error = %v, want ErrTransport", err)
	}
	if _, err := p.Read(4); !errors.Is(err, screen.ErrNotOpen) {
		t.Errorf("Read() error = %v, want ErrNotOpen", err)
	}
}

func TestPanel_Handshake(t *testing.T) {
	conn := &fakeConn{reply: []byte{1, 2, 3, 4, 5}}
	p, _ := newPanel(conn)

	resp, err := p.Handshake()
	if err != nil {
		t.Fatalf("Handshake() error = %v", err)
	}
	if !bytes.Equal(resp, []byte{1, 2, 3, 4, 5}) {
		t.Errorf("Handshake() = % x", resp)
	}
	b := conn.writes[0]
	if b[8] != identifyLength || b[20] != DirIn || b[21] != CmdIdentify {
		t.Errorf("identify block = % x", b)
	}
	if len(conn.reads) != 2 || conn.reads[0] != identifyLength || conn.reads[1] != AckSize {
		t.Errorf("reads = %v, want [5 13]", conn.reads)
	}
}

func TestPanel_CloseClearsResetsReleases(t *testing.T) {
	conn := &fakeConn{}
	p, _ := newPanel(conn)
	p.Open()
	p.Close()

	if p.IsOpen() {
		t.Error("IsOpen() = true after Close()")
	}
	if conn.resets != 1 || !conn.closed {
		t.Errorf("resets=%d closed=%v", conn.resets, conn.closed)
	}
	if len(conn.writes) != 2 {
		t.Errorf("writes on close = %d, want white frame", len(conn.writes))
	}
}

func TestPanel_Descriptor(t *testing.T) {
	p := New(Config{})
	d := p.Descriptor()
	if d.Identity != DefaultSerialNumber || d.Width != 480 || d.Height != 320 {
		t.Errorf("Descriptor() = %+v", d)
	}
	if p.String() != "VID:PID=0x1908:0x0102 SER=WCH32" {
		t.Errorf("String() = %q", p.String())
	}
}

func TestSerialMatches(t *testing.T) {
	const want = DefaultSerialNumber
	tests := []struct {
		name string
		sn   string
		err  error
		ok   bool
	}{
		{"exact", want, nil, true},
		{"nul padded", "WCH32\x00\x00", nil, true},
		{"empty", "", nil, true},
		{"unreadable", "", errors.New("LIBUSB_ERROR_ACCESS"), true},
		{"other panel", "AX206-0001", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := serialMatches(tt.sn, tt.err, want); got != tt.ok {
				t.Errorf("serialMatches(%q) = %v, want %v", tt.sn, got, tt.ok)
			}
		})
	}
}
