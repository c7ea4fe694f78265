package extract

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}

func attr(key, value string) html.Attribute {
	return html.Attribute{Key: key, Val: value}
}

func textNode(text string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: text}
}

// pageDiv wraps one source page's content.
func pageDiv(page int) *html.Node {
	return element(atom.Div, attr("data-page", strconv.Itoa(page)))
}

func paragraph(text string) *html.Node {
	p := element(atom.P)
	p.AppendChild(textNode(text))
	return p
}

func italicParagraph(text string) *html.Node {
	p := element(atom.P)
	i := element(atom.I)
	i.AppendChild(textNode(text))
	p.AppendChild(i)
	return p
}

// attachmentImage references a multipart section by its token.
func attachmentImage(token, alt string) *html.Node {
	return element(atom.Img, attr("src", "name:"+token), attr("alt", alt))
}

func separator() *html.Node {
	return element(atom.Hr)
}

// renderFragment renders nodes in order, each followed by nothing else.
func renderFragment(nodes []*html.Node) (string, error) {
	var sb strings.Builder
	for _, node := range nodes {
		if err := html.Render(&sb, node); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}

// BuildPage renders a complete page document with title and body fragment.
func BuildPage(title, body string, created time.Time) (string, error) {
	doc := &html.Node{Type: html.DocumentNode}
	doc.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})

	root := element(atom.Html)
	head := element(atom.Head)
	titleNode := element(atom.Title)
	titleNode.AppendChild(textNode(title))
	head.AppendChild(titleNode)
	head.AppendChild(element(atom.Meta, attr("name", "created"), attr("content", created.Format(time.RFC3339))))
	root.AppendChild(head)

	bodyNode := element(atom.Body)
	children, err := html.ParseFragment(strings.NewReader(body), bodyNode)
	if err != nil {
		return "", err
	}
	for _, child := range children {
		bodyNode.AppendChild(child)
	}
	root.AppendChild(bodyNode)
	doc.AppendChild(root)

	var sb strings.Builder
	if err := html.Render(&sb, doc); err != nil {
		return "", err
	}
	return sb.String(), nil
}
