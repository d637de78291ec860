package tool

import "fmt"

// extractionJS returns a script that serialises the page under root (a DOM
// expression such as "document.body") into a PageContent JSON string. Text
// is capped at maxChars; hidden, script and style nodes are skipped.
func extractionJS(root string, maxChars int) string {
	return fmt.Sprintf(`(function() {
  const MAX = %d;
  const root = %s;
  const page = {title: document.title, url: location.href, text: "", links: [], forms: []};
  if (!root) { page.text = "[no content]"; return JSON.stringify(page); }

  const sel = (el) => {
    if (el.id) return "#" + CSS.escape(el.id);
    const parts = [];
    for (let n = el; n && n.nodeType === 1 && n !== document.body; n = n.parentElement) {
      if (n.id) { parts.unshift("#" + CSS.escape(n.id)); break; }
      let i = 1;
      for (let s = n.previousElementSibling; s; s = s.previousElementSibling) if (s.tagName === n.tagName) i++;
      parts.unshift(n.tagName.toLowerCase() + ":nth-of-type(" + i + ")");
    }
    return parts.join(" > ") || "body";
  };

  const out = [];
  let size = 0;
  const push = (s) => {
    if (size >= MAX) return;
    s = s.slice(0, MAX - size);
    out.push(s);
    size += s.length;
  };

  const skip = new Set(["SCRIPT", "STYLE", "NOSCRIPT", "SVG", "TEMPLATE"]);
  const walk = (node) => {
    if (size >= MAX) return;
    if (node.nodeType === 3) {
      const t = node.textContent.replace(/\s+/g, " ").trim();
      if (t) push(t);
      return;
    }
    if (node.nodeType !== 1 || skip.has(node.tagName)) return;
    const style = getComputedStyle(node);
    if (style.display === "none" || style.visibility === "hidden") return;

    if (node.tagName === "A" && node.href) {
      page.links.push({text: node.textContent.trim(), href: node.href, selector: sel(node)});
    }
    if (node.tagName === "FORM") {
      const fields = Array.from(node.elements).map((e) => e.name).filter(Boolean);
      page.forms.push({selector: sel(node), action: node.action || "", fields: fields});
    }
    if (/^H[1-6]$/.test(node.tagName)) push("\n# ");
    for (const child of node.childNodes) walk(child);
    if (/^(P|DIV|LI|TR|H[1-6]|SECTION|ARTICLE)$/.test(node.tagName)) push("\n");
  };
  walk(root);

  page.text = out.join(" ").replace(/ *\n */g, "\n").replace(/\n{3,}/g, "\n\n").trim();
  if (size >= MAX) page.text += "\n[truncated]";
  return JSON.stringify(page);
})()`, maxChars, root)
}

// highlightJS outlines every element matching selector and tags it so the
// outline can be removed later.
func highlightJS(selector, color string) string {
	return fmt.Sprintf(`(function() {
  const els = document.querySelectorAll(%q);
  els.forEach((el) => {
    if (!el.hasAttribute("data-wayfinder-hl")) {
      el.setAttribute("data-wayfinder-hl", el.style.outline || "");
    }
    el.style.outline = "3px solid " + %q;
    el.style.outlineOffset = "2px";
  });
  if (els.length > 0) els[0].scrollIntoView({block: "center", behavior: "smooth"});
  return els.length;
})()`, selector, color)
}

// clearHighlightJS restores the outline of highlighted elements. An empty
// selector clears every highlight on the page.
func clearHighlightJS(selector string) string {
	query := "[data-wayfinder-hl]"
	if selector != "" {
		query = selector
	}
	return fmt.Sprintf(`(function() {
  const els = document.querySelectorAll(%q);
  els.forEach((el) => {
    if (!el.hasAttribute("data-wayfinder-hl")) return;
    el.style.outline = el.getAttribute("data-wayfinder-hl");
    el.style.outlineOffset = "";
    el.removeAttribute("data-wayfinder-hl");
  });
  return els.length;
})()`, query)
}
