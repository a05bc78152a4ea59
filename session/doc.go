// Package session loads recorded structure-recovery sessions.
//
// A session file describes the analysed image and the field accesses and
// vtable stores observed while scanning variables. Replaying it yields an
// accumulator ready for editing and packing:
//
//	s, err := session.Open("player.yaml")
//	if err != nil {
//		return err
//	}
//	res, err := s.Accumulator.Finalize(structrecover.AcceptAll)
//
// Vtable candidates that fail detection are skipped and listed in
// Session.Rejected.
package session
