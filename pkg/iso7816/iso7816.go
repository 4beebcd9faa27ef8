/*
Package iso7816 is the caller side of an APDU exchange with a Secure Element, following ISO/IEC 7816-4.

It knows how to build Command APDUs, split a Response APDU into data and status word, and drive the
transport behaviours that T=0 style cards push onto the application:

  - 61XX: XX more bytes are waiting; the Client fetches them with GET RESPONSE.
  - 6CXX: wrong Le; the Client re-issues the command with Le = XX.

Everything that crosses the wire is recorded in a Trace, one Transaction per physical exchange.

# Logical channels

An embedded SE is shared by several applets at once. MANAGE CHANNEL opens a logical channel and the
channel number is then carried in every CLA byte:

	trace, err := client.Send(iso7816.ManageChannelOpen(iso7816.ClassInterindustry))
	ch, err := iso7816.OpenedChannel(trace)
	cls, err := iso7816.ClassInterindustry.WithChannel(ch)
	trace, err = client.Send(iso7816.SelectByAID(cls, aid))

The Client only needs something that can Transmit raw bytes, which is how a session handle is plugged
in (see se.Conn).
*/
package iso7816
