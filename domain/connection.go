// Package domain holds the states shared by the engine and its consumers.
package domain

// ConnectionState is the lifecycle of the physical link to the server.
type ConnectionState string

const (
	Disconnected ConnectionState = "DISCONNECTED"
	Connecting   ConnectionState = "CONNECTING"
	Handshaking  ConnectionState = "HANDSHAKING"
	Connected    ConnectionState = "CONNECTED"
	Reconnecting ConnectionState = "RECONNECTING"
)

// SessionState is the lifecycle of the logical, authenticated session.
// It may span several physical connections.
type SessionState string

const (
	Anonymous      SessionState = "ANONYMOUS"
	Authenticating SessionState = "AUTHENTICATING"
	Authenticated  SessionState = "AUTHENTICATED"
	Terminated     SessionState = "TERMINATED"
)

// Membership is the local view of the user's presence in one channel.
type Membership string

const (
	Joining Membership = "JOINING"
	Joined  Membership = "JOINED"
	Leaving Membership = "LEAVING"
	Left    Membership = "LEFT"
)

// Active reports whether the channel accepts outgoing messages.
func (m Membership) Active() bool {
	return m == Joining || m == Joined
}
