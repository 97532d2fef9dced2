package main

// templates module
//
// Copyright (c) 2023 - Valentin Kuznetsov <vkuznet@gmail.com>
//

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

// TmplRecord represent template record
type TmplRecord map[string]interface{}

// String converts given value for provided key to string data-type
func (t TmplRecord) String(key string) string {
	if v, ok := t[key]; ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
}

// Templates structure
type Templates struct {
	html string
}

// template functions
var tmplFuncs = template.FuncMap{
	"upper": strings.ToUpper,
}

// Tmpl method for ServerTemplates structure
func (q *Templates) Tmpl(tfile string, tmplData map[string]interface{}) string {
	if q.html != "" {
		return q.html
	}

	// get template from embed.FS
	filenames := []string{"static/templates/" + tfile}
	t := template.Must(template.New(tfile).Funcs(tmplFuncs).ParseFS(StaticFs, filenames...))
	buf := new(bytes.Buffer)
	err := t.Execute(buf, tmplData)
	if err != nil {
		panic(err)
	}
	q.html = buf.String()
	return q.html
}

// helper function to make initial template record with page header and
// footer
func makeTmpl(title string) TmplRecord {
	tmpl := make(TmplRecord)
	tmpl["Title"] = title
	tmpl["Base"] = Config.Base
	tmpl["CSS"] = basePath("/css/mlboard.css")
	tmpl["ServerInfo"] = info()
	tmpl["Top"] = template.HTML(tmplPage("top.tmpl", tmpl))
	tmpl["Bottom"] = template.HTML(tmplPage("bottom.tmpl", tmpl))
	return tmpl
}

// helper function to render given template file
func tmplPage(tfile string, tmpl TmplRecord) string {
	var templates Templates
	return templates.Tmpl(tfile, tmpl)
}
