package main

import (
	"fmt"
	"log"
	"net"

	"github.com/pion/logging"
	"github.com/pion/turn/v4"
)

// turnConfig holds the embedded STUN/TURN relay settings. Peers behind
// symmetric NAT cannot form direct links with STUN alone; the relay process
// can run its own TURN server so every room stays joinable.
type turnConfig struct {
	port     int
	publicIP string
	realm    string
	username string
	password string
}

// startTURN brings up a pion TURN server on its own UDP and TCP listeners.
// Returns the relay IP actually advertised to clients.
func startTURN(cfg turnConfig) (string, error) {
	udpListener, err := net.ListenPacket("udp4", fmt.Sprintf("0.0.0.0:%d", cfg.port))
	if err != nil {
		return "", fmt.Errorf("turn udp listener: %w", err)
	}
	tcpListener, err := net.Listen("tcp4", fmt.Sprintf("0.0.0.0:%d", cfg.port))
	if err != nil {
		return "", fmt.Errorf("turn tcp listener: %w", err)
	}

	relayIP := net.ParseIP(cfg.publicIP)
	if relayIP == nil {
		relayIP = outboundIP()
	}
	if relayIP == nil {
		log.Println("[turn] could not determine public IP, relay may not work")
		relayIP = net.ParseIP("127.0.0.1")
	}

	authKey := turn.GenerateAuthKey(cfg.username, cfg.realm, cfg.password)

	_, err = turn.NewServer(turn.ServerConfig{
		Realm:         cfg.realm,
		LoggerFactory: logging.NewDefaultLoggerFactory(),
		AuthHandler: func(username, realm string, srcAddr net.Addr) ([]byte, bool) {
			if username == cfg.username {
				return authKey, true
			}
			return nil, false
		},
		PacketConnConfigs: []turn.PacketConnConfig{
			{
				PacketConn: udpListener,
				RelayAddressGenerator: &turn.RelayAddressGeneratorStatic{
					RelayAddress: relayIP,
					Address:      "0.0.0.0",
				},
			},
		},
		ListenerConfigs: []turn.ListenerConfig{
			{
				Listener: tcpListener,
				RelayAddressGenerator: &turn.RelayAddressGeneratorStatic{
					RelayAddress: relayIP,
					Address:      "0.0.0.0",
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("turn server: %w", err)
	}

	log.Printf("[turn] server started on UDP/TCP port %d (relay IP %s)", cfg.port, relayIP)
	return relayIP.String(), nil
}

// outboundIP reports the preferred outbound IP of this machine.
func outboundIP() net.IP {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return nil
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP
}
