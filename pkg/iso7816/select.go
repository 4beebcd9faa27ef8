package iso7816

// SELECT by DF name (P1 = 04) is how applets on a Secure Element are addressed.
// P2 picks the occurrence (bits 2-1) and what comes back (bits 4-3); an SE answers with an FCI.

// Occurrence selects which of several matching applications is returned (P2 bits 2-1).
type Occurrence byte

const (
	FirstOrOnly Occurrence = 0b00
	NextMatch   Occurrence = 0b10
)

const selectByName = 0x04

// SelectByAID selects an application by its AID, or by a partial AID prefix with NextMatch.
func SelectByAID(cla Class, aid []byte) *CommandAPDU {
	return SelectOccurrence(cla, aid, FirstOrOnly)
}

// SelectOccurrence is SelectByAID with an explicit occurrence, used to walk applications sharing an AID prefix.
func SelectOccurrence(cla Class, aid []byte, occ Occurrence) *CommandAPDU {
	// Under T=0 a case 4 command is sent as case 3; the card answers 61XX and the
	// Client collects the FCI with GET RESPONSE. Only ask for data when there is no body.
	ne := 0
	if len(aid) == 0 {
		ne = MaxShortLe
	}
	return NewCommandAPDU(cla, INS_SELECT, selectByName, byte(occ), aid, ne)
}
