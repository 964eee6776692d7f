package action

import "errors"

// ErrUnknownSubtype is logged when a final Imperative intent reaches the
// conflict window with no handler registered for its subtype. The action
// event still publishes with WasDebounced false; no handler runs for the
// pending action.
var ErrUnknownSubtype = errors.New("no handler registered for action subtype")
