package validation

import (
	"bytes"
	"regexp"
	"strings"
	"text/template"
)

var clientTemplate = template.Must(template.New("validation.js").Parse(`// Generated by makazi. Do not edit.
(function (global) {
  "use strict";

  function blank(v) {
    return v == null || /^{{.Blank}}*$/.test(String(v));
  }

  function check(raw, strip, pattern, message) {
    var cleaned = String(raw == null ? "" : raw).replace(strip, "");
    if (pattern.test(cleaned)) {
      return { valid: true, cleaned: cleaned, error: null };
    }
    return { valid: false, cleaned: cleaned, error: message };
  }

  function validateNationalId(raw) {
    return check(raw, /{{.NationalIDStrip}}/g, /{{.NationalIDPattern}}/, {{.NationalIDError}});
  }

  function validatePhoneNumber(raw) {
    return check(raw, /{{.PhoneStrip}}/g, /{{.PhonePattern}}/, {{.PhoneError}});
  }

  function humanize(name) {
    return String(name).split(/[_{{.BlankChars}}]+/).filter(function (w) { return w !== ""; }).map(function (w) {
      return w.charAt(0).replace(/[a-z]/, function (c) { return c.toUpperCase(); }) + w.slice(1);
    }).join(" ");
  }

  function validateFormData(fields, required) {
    var errors = {};
    var data = {};
    var k;
    for (k in fields) {
      if (Object.prototype.hasOwnProperty.call(fields, k)) {
        data[k] = fields[k];
      }
    }
    var checks = [[{{.FieldNationalID}}, validateNationalId], [{{.FieldPhone}}, validatePhoneNumber]];
    checks.forEach(function (c) {
      var v = fields[c[0]];
      if (blank(v)) {
        return;
      }
      var r = c[1](v);
      if (r.valid) {
        data[c[0]] = r.cleaned;
      } else {
        errors[c[0]] = r.error;
      }
    });
    (required || []).forEach(function (name) {
      if (errors[name]) {
        return;
      }
      if (blank(fields[name])) {
        errors[name] = humanize(name) + " is required";
      }
    });
    return { valid: Object.keys(errors).length === 0, errors: errors, data: data };
  }

  global.MakaziValidation = {
    validateNationalId: validateNationalId,
    validatePhoneNumber: validatePhoneNumber,
    validateFormData: validateFormData
  };
})(window);
`))

type clientData struct {
	Blank             string
	BlankChars        string
	NationalIDStrip   string
	PhoneStrip        string
	NationalIDPattern string
	PhonePattern      string
	NationalIDError   string
	PhoneError        string
	FieldNationalID   string
	FieldPhone        string
}

// ClientScript renders the browser copy of the validators
func ClientScript() []byte {
	var buf bytes.Buffer
	err := clientTemplate.Execute(&buf, clientData{
		Blank:             jsClass(blankChars),
		BlankChars:        jsClassBody(blankChars),
		NationalIDStrip:   jsClass(nationalIDStrip),
		PhoneStrip:        jsClass(phoneStrip),
		NationalIDPattern: nationalIDPattern.String(),
		PhonePattern:      phonePattern.String(),
		NationalIDError:   jsString(NationalIDError),
		PhoneError:        jsString(PhoneError),
		FieldNationalID:   jsString(FieldNationalID),
		FieldPhone:        jsString(FieldPhone),
	})
	if err != nil {
		panic(err)
	}
	return buf.Bytes()
}

var jsUnsafe = regexp.MustCompile(`[\\"]`)

func jsString(s string) string {
	return `"` + jsUnsafe.ReplaceAllString(s, `\$0`) + `"`
}

var jsClassEscapes = map[rune]string{
	'\t': `\t`, '\n': `\n`, '\v': `\v`, '\f': `\f`, '\r': `\r`,
	'-': `\-`, '\\': `\\`, ']': `\]`, '^': `\^`, '/': `\/`,
}

// jsClassBody renders set as the inside of a regexp character class
func jsClassBody(set string) string {
	var b strings.Builder
	for _, r := range set {
		if esc, ok := jsClassEscapes[r]; ok {
			b.WriteString(esc)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func jsClass(set string) string {
	return "[" + jsClassBody(set) + "]"
}
