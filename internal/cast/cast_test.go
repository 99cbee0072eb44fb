package cast

import (
	"errors"
	"strings"
	"testing"
)

func testDevices() []Device {
	return []Device{
		{Name: "Bedroom TV", UUID: "aaa", Addr: "192.168.1.20", Port: 8009},
		{Name: "Living Room TV", UUID: "bbb", Addr: "192.168.1.21", Port: 8009},
		{Name: "Living Room speaker", UUID: "ccc", Addr: "192.168.1.22", Port: 8009},
	}
}

func TestMatchDeviceExact(t *testing.T) {
	d, err := MatchDevice(testDevices(), "living room tv")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if d.UUID != "bbb" {
		t.Errorf("matched %+v, want Living Room TV", d)
	}
}

func TestMatchDevicePrefix(t *testing.T) {
	d, err := MatchDevice(testDevices(), "bedroom")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if d.UUID != "aaa" {
		t.Errorf("matched %+v, want Bedroom TV", d)
	}
}

func TestMatchDeviceExactBeatsPrefix(t *testing.T) {
	devices := []Device{
		{Name: "TV 2", UUID: "long"},
		{Name: "TV", UUID: "short"},
	}
	d, err := MatchDevice(devices, "tv")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if d.UUID != "short" {
		t.Errorf("matched %+v, want the exact name", d)
	}
}

func TestMatchDeviceEmptyNamePicksFirst(t *testing.T) {
	d, err := MatchDevice(testDevices(), "")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if d.UUID != "aaa" {
		t.Errorf("matched %+v, want first device", d)
	}
}

func TestMatchDeviceNoDevices(t *testing.T) {
	if _, err := MatchDevice(nil, "anything"); !errors.Is(err, ErrNoDevices) {
		t.Errorf("err = %v, want ErrNoDevices", err)
	}
}

func TestMatchDeviceUnknownNameListsCandidates(t *testing.T) {
	_, err := MatchDevice(testDevices(), "Kitchen")
	if err == nil {
		t.Fatal("match succeeded for unknown name")
	}
	if !strings.Contains(err.Error(), "Bedroom TV") {
		t.Errorf("error %q does not list available devices", err)
	}
}

func TestDeviceString(t *testing.T) {
	d := Device{Name: "Living Room TV", Addr: "192.168.1.21", Port: 8009}
	if got := d.String(); got != "Living Room TV (192.168.1.21:8009)" {
		t.Errorf("String() = %q", got)
	}
}

func TestSessionStopWithoutConnect(t *testing.T) {
	s := NewSession(Device{Name: "TV"})
	if err := s.Stop(); err != nil {
		t.Errorf("stop without connect: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("second stop: %v", err)
	}
}
