package chat

// ResolveSession picks the session a turn should append to, given the
// already-fetched candidates. It is a pure function: creation, when
// needed, stays at the call site.
//
// Priority: an explicit session wins, but only if it carries the
// requested persona; otherwise the most recently updated active
// session; otherwise nothing, signalled by createNew=true.
func ResolveSession(explicit, latestActive *Session, personaID string) (sess *Session, createNew bool, err error) {
	if explicit != nil {
		if explicit.PersonaID != personaID {
			return nil, false, ErrPersonaMismatch
		}
		return explicit, false, nil
	}
	if latestActive != nil {
		return latestActive, false, nil
	}
	return nil, true, nil
}
