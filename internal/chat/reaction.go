package chat

// AddReaction applies r to the message's aggregate. When own is true the
// reaction also becomes one of the session user's own reactions. An existing
// reaction by the same user and type is replaced rather than counted twice.
//
// The server truncates LatestReactions, so for own reactions the count
// follows OwnReactions membership.
func AddReaction(m Message, r Reaction, own bool) Message {
	if own {
		return addOwn(m, r, 0)
	}
	r = normalizeReaction(r)
	m = m.Clone()
	if m.ReactionCounts == nil {
		m.ReactionCounts = map[string]int{}
	}
	if i := reactionIndex(m.LatestReactions, r.UserID, r.Type); i >= 0 {
		m.LatestReactions[i] = r
	} else {
		m.LatestReactions = append([]Reaction{r}, m.LatestReactions...)
		m.ReactionCounts[r.Type]++
	}
	return m
}

// RestoreReaction re-adds an own reaction taken away by RemoveReaction.
// latestIndex is the position r held in LatestReactions before the removal,
// or -1 when it was not listed there.
func RestoreReaction(m Message, r Reaction, latestIndex int) Message {
	return addOwn(m, r, latestIndex)
}

// LatestIndex returns the position of the (user, type) reaction in
// LatestReactions, or -1.
func (m Message) LatestIndex(userID, reactionType string) int {
	return reactionIndex(m.LatestReactions, userID, reactionType)
}

// OwnReaction returns the session user's reaction of the given type.
func (m Message) OwnReaction(userID, reactionType string) (Reaction, bool) {
	if i := reactionIndex(m.OwnReactions, userID, reactionType); i >= 0 {
		return m.OwnReactions[i], true
	}
	return Reaction{}, false
}

func addOwn(m Message, r Reaction, latestIndex int) Message {
	r = normalizeReaction(r)
	m = m.Clone()
	li := reactionIndex(m.LatestReactions, r.UserID, r.Type)
	if li >= 0 {
		m.LatestReactions[li] = r
	}
	if i := reactionIndex(m.OwnReactions, r.UserID, r.Type); i >= 0 {
		m.OwnReactions[i] = r
		return m
	}

	if m.ReactionCounts == nil {
		m.ReactionCounts = map[string]int{}
	}
	m.ReactionCounts[r.Type]++
	m.OwnReactions = append([]Reaction{r}, m.OwnReactions...)
	if li < 0 && latestIndex >= 0 {
		if latestIndex > len(m.LatestReactions) {
			latestIndex = len(m.LatestReactions)
		}
		latest := make([]Reaction, 0, len(m.LatestReactions)+1)
		latest = append(latest, m.LatestReactions[:latestIndex]...)
		latest = append(latest, r)
		m.LatestReactions = append(latest, m.LatestReactions[latestIndex:]...)
	}
	return m
}

// RemoveReaction is the inverse of AddReaction for the (user, type) key.
// For own reactions the count only drops when the reaction was one of
// OwnReactions, whether or not it is still listed in LatestReactions.
func RemoveReaction(m Message, userID, reactionType string, own bool) Message {
	m = m.Clone()
	counted := false
	if own {
		if i := reactionIndex(m.OwnReactions, userID, reactionType); i >= 0 {
			m.OwnReactions = append(m.OwnReactions[:i:i], m.OwnReactions[i+1:]...)
			counted = true
		}
	}
	if i := reactionIndex(m.LatestReactions, userID, reactionType); i >= 0 {
		m.LatestReactions = append(m.LatestReactions[:i:i], m.LatestReactions[i+1:]...)
		if !own {
			counted = true
		}
	}
	if counted {
		if m.ReactionCounts[reactionType] > 1 {
			m.ReactionCounts[reactionType]--
		} else {
			delete(m.ReactionCounts, reactionType)
		}
	}
	if len(m.LatestReactions) == 0 {
		m.LatestReactions = nil
	}
	if len(m.OwnReactions) == 0 {
		m.OwnReactions = nil
	}
	if len(m.ReactionCounts) == 0 {
		m.ReactionCounts = nil
	}
	return m
}

// MergeReactionEvent takes the server's view of a message from a reaction
// event and keeps the locally known own reactions, adjusting them only when
// the reaction belongs to ownUserID.
func MergeReactionEvent(local, server Message, r Reaction, added bool, ownUserID string) Message {
	r = normalizeReaction(r)
	out := server.Clone()
	out.OwnReactions = cloneSlice(local.OwnReactions)
	out.Status = local.Status
	if out.Status == "" {
		out.Status = StatusReceived
	}
	if r.UserID != ownUserID {
		return out
	}
	i := reactionIndex(out.OwnReactions, r.UserID, r.Type)
	switch {
	case added && i < 0:
		out.OwnReactions = append([]Reaction{r}, out.OwnReactions...)
	case !added && i >= 0:
		out.OwnReactions = append(out.OwnReactions[:i:i], out.OwnReactions[i+1:]...)
		if len(out.OwnReactions) == 0 {
			out.OwnReactions = nil
		}
	}
	return out
}

func reactionIndex(rs []Reaction, userID, reactionType string) int {
	for i, r := range rs {
		if r.UserID == userID && r.Type == reactionType {
			return i
		}
	}
	return -1
}

func normalizeReaction(r Reaction) Reaction {
	if r.UserID == "" && r.User != nil {
		r.UserID = r.User.ID
	}
	return r
}
