// Package discovery finds speakers on the local network over mDNS.
//
// A Browser runs a background loop that browses the configured service type
// (LinkPlay speakers advertise _linkplay._tcp) for one scan window, swaps
// the result into a snapshot and waits for the next interval. Readers never
// block on the network: Services and Discover return the latest snapshot.
//
// Browser implements arylic.DiscoverySource. Every advertised speaker is
// reported on the fixed control port 8899; the advertised service port
// belongs to the speaker's HTTP API, not the TCP control protocol.
package discovery
