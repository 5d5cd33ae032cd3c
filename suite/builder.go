package suite

// Registrar accepts suites once their declaration is complete.
type Registrar interface {
	AddSuite(s *Suite)
}

// Describe creates a suite below parent, hands it to configure and then
// registers it with r. Suites declared inside configure with the new suite as
// parent are therefore registered before it.
func Describe(r Registrar, title string, parent *Suite, configure func(s *Suite)) *Suite {
	s := New(title, parent)
	if configure != nil {
		configure(s)
	}
	if r != nil {
		r.AddSuite(s)
	}
	return s
}
