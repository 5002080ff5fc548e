// Package backend defines the media and slideshow collaborators the player
// drives, and adapts an external video player to the common handle.
//
// Collaborators must deliver their events asynchronously: a command such as
// Play or RenderSlide must not call back into the player before returning.
package backend

import "context"

// Handle is the capability set shared by every media backend.
type Handle interface {
	Play()
	Pause()
	Seek(t float64)
	CurrentTime() float64
	// Ready reports whether the backend has enough data to seek and play.
	Ready() bool
	Playing() bool
}

// Loader is implemented by a handle that switches its source per slide.
type Loader interface {
	Load(slide int)
}

// SharedAudio is the slideshow audio element: one handle, one source per slide.
type SharedAudio interface {
	Handle
	Loader
}

// Initializer is implemented by backends that need one-time setup before use.
type Initializer interface {
	Init(ctx context.Context) error
}

// Slideshow renders slides and steps through fragments.
type Slideshow interface {
	// RenderSlide shows the slide at the 0-based index.
	RenderSlide(index int)
	// GoToFragment shows fragments up to index; -1 hides all of them.
	GoToFragment(index int)
}

// Scroller scrolls the article view.
type Scroller interface {
	ScrollToSlide(slide int)
}
