//go:generate mockgen -destination=./mocks/acquire.go -package=mocks . Progress,Enqueuer

package acquire

// Progress receives user-interface callbacks while items move through their
// lifecycle. The event loop calls them inline and waits for each to return;
// MediaChange in particular holds the loop until the user answers.
type Progress interface {
	// Fetch announces that an item started transferring.
	Fetch(desc *ItemDesc)
	// Done announces a verified completion.
	Done(desc *ItemDesc)
	// IMSHit announces that the local copy turned out to be current.
	IMSHit(desc *ItemDesc)
	// Fail announces a failed or abandoned attempt.
	Fail(desc *ItemDesc)
	// Fetched accounts transferred payload bytes, minus resumed ones.
	Fetched(size, resumePoint uint64)
	// MediaChange asks the user to insert the named medium. It returns
	// false when the user refused.
	MediaChange(media, drive string) bool
}

// Enqueuer accepts requests for (re-)scheduling. The engine implements it;
// workers call it when retries, alternates or redirects put an item back in
// line.
type Enqueuer interface {
	Enqueue(desc *ItemDesc)
}
