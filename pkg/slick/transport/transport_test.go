package transport

import (
	"net"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/rattab/slick/pkg/slick"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("freePort: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestLoopbackHandshake(t *testing.T) {
	portA := freePort(t)
	portB := freePort(t)

	cfgA := DefaultConfig()
	cfgA.ListenAddr = "127.0.0.1:" + itoaTest(portA)
	cfgA.LocalID = slick.NewNodeId()

	cfgB := DefaultConfig()
	cfgB.ListenAddr = "127.0.0.1:" + itoaTest(portB)
	cfgB.LocalID = slick.NewNodeId()

	polA, err := New(cfgA, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("New A: %v", err)
	}
	polB, err := New(cfgB, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("New B: %v", err)
	}

	var mu sync.Mutex
	var aHandshook, bHandshook bool

	hA := &Handlers{
		OnHandshake: func(c *ConnState, tag string, version uint32, peer slick.NodeId) bool {
			mu.Lock()
			aHandshook = true
			mu.Unlock()
			return true
		},
	}
	hB := &Handlers{
		OnHandshake: func(c *ConnState, tag string, version uint32, peer slick.NodeId) bool {
			mu.Lock()
			bHandshook = true
			mu.Unlock()
			return true
		},
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); polA.Run(hA) }()
	go func() { defer wg.Done(); polB.Run(hB) }()

	time.Sleep(20 * time.Millisecond)

	if err := polA.Connect(slick.Address{Host: "127.0.0.1", Port: uint16(portB)}, ModeGossip); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := aHandshook && bHandshook
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if !aHandshook {
		t.Error("A never observed a handshake")
	}
	if !bHandshook {
		t.Error("B never observed a handshake")
	}

	polA.Close()
	polB.Close()
	wg.Wait()
}

func itoaTest(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
