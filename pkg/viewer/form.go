package viewer

import "fmt"

// formState tracks FormMode: the element list lives page-side in
// window.__termwebForm (discovered with a single DOM query); the viewer
// keeps only the count and the focus index.
type formState struct {
	count int
	index int
}

// formDiscoverJS collects every focusable element once and returns the
// count.
const formDiscoverJS = `(() => {
	const sel = 'a[href], button, input:not([type=hidden]), select, textarea, [tabindex]:not([tabindex="-1"]), [role="button"]';
	const els = Array.from(document.querySelectorAll(sel)).filter(el => !el.disabled && el.getClientRects().length > 0);
	window.__termwebForm = els;
	return els.length;
})()`

// formFocusJS focuses element i and reports its kind as "tag" or
// "input:<type>".
func formFocusJS(i int) string {
	return fmt.Sprintf(`(() => {
	const els = window.__termwebForm || [];
	const el = els[%d];
	if (!el) return "";
	el.focus();
	el.scrollIntoView({block: "center", behavior: "instant"});
	const tag = el.tagName.toLowerCase();
	return tag === "input" ? "input:" + (el.type || "text").toLowerCase() : tag;
})()`, i)
}

// formActivateJS activates the focused element: text-entry elements
// report "text" (the viewer switches to TextInput); everything else is
// clicked.
const formActivateJS = `(() => {
	const el = document.activeElement;
	if (!el) return "";
	const tag = el.tagName.toLowerCase();
	const type = (el.type || "").toLowerCase();
	if (tag === "textarea" || (tag === "input" && !["button", "submit", "checkbox", "radio", "reset", "file"].includes(type))) {
		return "text";
	}
	el.click();
	return "clicked";
})()`

// step advances the focus index by delta, wrapping.
func (f *formState) step(delta int) int {
	if f.count == 0 {
		return 0
	}
	f.index = (f.index + delta + f.count) % f.count
	return f.index
}
