package loader

// Navigator is the navigation capability handed to components that move the
// visitor between scenes (menus, the quest overlay, waypoint elements).
type Navigator interface {
	Navigate(sceneID string) error
	Current() string
	OnChange(fn func(sceneID string))
}

var _ Navigator = (*Loader)(nil)
