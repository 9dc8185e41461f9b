// Package caption watches a video player's page for caption text.
//
// The page is read through a Source: an HTML snapshot file that another
// program keeps rewriting, or a URL serving the current player HTML. The
// Observer finds the caption container, extracts the visible caption lines
// and emits a CaptionSnapshot on every change notification and every poll
// tick. Deciding whether a snapshot is worth speaking is left to the filter.
package caption
