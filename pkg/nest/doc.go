/*
Package nest provides a recursive template composition engine. Templates are
plain text files containing named tokens such as <!--% title %-->; an input
tree of Text, List and Keyed values says which template to fill and with
what, and components can nest other components arbitrarily deep.

	n, err := nest.New(logger, cfg)
	page := nest.NewKeyed("page").
		WithText("title", "Hello").
		With("body", nest.NewList(nest.NewKeyed("card"), nest.NewKeyed("card")))
	out, err := n.Render(page)

There are no conditionals, loops or expressions: a template only has named
substitution points. Indexed templates are cached per engine and re-read
when the file modification time advances.
*/
package nest
