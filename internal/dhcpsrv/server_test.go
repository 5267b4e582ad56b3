package dhcpsrv

import (
	"io"
	"log/slog"
	"net"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAssign_SequentialAndSticky(t *testing.T) {
	s := NewServer(discardLogger())
	s.rng = IPRange{Start: net.ParseIP("192.168.2.2"), End: net.ParseIP("192.168.2.4")}

	first := s.assign("aa:bb:cc:dd:ee:01")
	if first.String() != "192.168.2.2" {
		t.Fatalf("first assign = %s; want 192.168.2.2", first)
	}

	second := s.assign("aa:bb:cc:dd:ee:02")
	if second.String() != "192.168.2.3" {
		t.Fatalf("second assign = %s; want 192.168.2.3", second)
	}

	// Same MAC gets the same lease back.
	repeat := s.assign("aa:bb:cc:dd:ee:01")
	if repeat.String() != first.String() {
		t.Fatalf("repeat assign = %s; want sticky %s", repeat, first)
	}
}

func TestAssign_ExhaustedRangeReturnsNil(t *testing.T) {
	s := NewServer(discardLogger())
	s.rng = IPRange{Start: net.ParseIP("192.168.2.2"), End: net.ParseIP("192.168.2.2")}

	if ip := s.assign("aa:bb:cc:dd:ee:01"); ip == nil {
		t.Fatalf("first assign in a single-address range should succeed")
	}
	if ip := s.assign("aa:bb:cc:dd:ee:02"); ip != nil {
		t.Fatalf("assign on exhausted range = %s; want nil", ip)
	}
}

func TestIPToUint32RoundTrip(t *testing.T) {
	ip := net.ParseIP("192.168.2.253")
	v := ipToUint32(ip)
	back := uint32ToIP(v)
	if !back.Equal(ip) {
		t.Fatalf("round trip = %s; want %s", back, ip)
	}
}

func TestStop_UnstartedServerIsNoop(t *testing.T) {
	s := NewServer(discardLogger())
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop on unstarted server: %v", err)
	}
}

func TestStart_InvalidInterfaceIndex(t *testing.T) {
	s := NewServer(discardLogger())
	err := s.Start(1<<30, IPRange{Start: net.ParseIP("192.168.2.2"), End: net.ParseIP("192.168.2.4")},
		0, "192.168.2.1", "255.255.255.0", "192.168.2.1")
	if err == nil {
		t.Fatalf("expected error for a nonexistent interface index")
	}
}

func TestStart_InvalidGateway(t *testing.T) {
	s := NewServer(discardLogger())
	err := s.Start(1, IPRange{Start: net.ParseIP("192.168.2.2"), End: net.ParseIP("192.168.2.4")},
		0, "not-an-ip", "255.255.255.0", "192.168.2.1")
	if err == nil {
		t.Fatalf("expected error for invalid gateway")
	}
}
