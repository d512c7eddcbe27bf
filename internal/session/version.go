package session

// Version is the client version reported in the hello handshake
const Version = "0.34.0"

// ProtocolVersion is the stream protocol revision this client speaks
const ProtocolVersion = 2
