package panel

import "html/template"

const controlTemplates = `
{{define "divs.pulldown"}}<div id="{{.ID}}_div" class="clearfix labelInputContainer"><div class="pull-left inputLabel{{if .Bootstrap}} form-control form-control-sm form-control-plaintext{{end}}" style="width:280px;">{{.Label}}</div><div class="pull-left customSelectBoxContainer"><select id="{{.ID}}" name="{{.Name}}" class="customSelectBox{{if .Bootstrap}} form-control form-control-sm{{end}}"{{if .Multiple}} multiple{{end}}{{if .Live}} data-live="{{.Service}}"{{end}}>{{range .Options}}<option value="{{.Value}}"{{if .Selected}} selected{{end}}>{{.Label}}</option>{{end}}</select></div></div>{{end}}

{{define "divs.input"}}<div id="{{.ID}}_div" class="clearfix labelInputContainer"><div class="pull-left inputLabel{{if .Bootstrap}} form-control form-control-sm form-control-plaintext{{end}}" style="width:280px;">{{.Label}}</div><div class="pull-left"><input class="customInput{{if .Bootstrap}} altui-ui-input form-control form-control-sm{{end}}" size="{{.Size}}" id="{{.ID}}" name="{{.Name}}" type="text" value="{{.Value}}"{{if .Live}} data-live="{{.Service}}"{{end}}></div></div>{{end}}

{{define "divs.button"}}<div class="cpanelSaveBtnContainer labelInputContainer clearfix"><input class="vBtn pull-right btn" type="button" value="Save Changes" data-action="{{.Callback}}" data-device="{{.DeviceID}}"></div>{{end}}

{{define "divs.group"}}<div id="{{.ID}}" style="display: {{if .Visible}}block{{else}}none{{end}};">{{range .Items}}{{.}}{{end}}</div>{{end}}

{{define "table.pulldown"}}<tr><td>{{.Label}}</td><td><select id="{{.ID}}" name="{{.Name}}" class="styled"{{if .Multiple}} multiple{{end}}{{if .Live}} data-live="{{.Service}}"{{end}}>{{range .Options}}<option value="{{.Value}}"{{if .Selected}} selected{{end}}>{{.Label}}</option>{{end}}</select></td></tr>{{end}}

{{define "table.input"}}<tr><td>{{.Label}}</td><td><input type="text" size="{{.Size}}" id="{{.ID}}" name="{{.Name}}" value="{{.Value}}"{{if .Live}} data-live="{{.Service}}"{{end}}></td></tr>{{end}}

{{define "table.button"}}<tr><td colspan="2"><input class="btn" type="button" value="Save Changes" data-action="{{.Callback}}" data-device="{{.DeviceID}}"></td></tr>{{end}}

{{define "table.group"}}{{range .Items}}{{.}}{{end}}{{end}}
`

const pageTemplates = `
{{define "divs.page"}}<div class="deviceCpanelSettingsPage"><h3>Device #{{.DeviceID}}&nbsp;&nbsp;&nbsp;{{.DeviceName}}</h3>{{if .Disabled}}<br>Plugin is disabled in Attributes.</div>{{else}}<form id="{{.FormID}}" onsubmit="return false;">{{range .Body}}{{.}}{{end}}</form></div>{{template "script" .Script}}{{end}}{{end}}

{{define "table.page"}}<table border="0" cellpadding="0" cellspacing="3" width="100%"><tbody><tr><td colspan="2"><b>Device #{{.DeviceID}}</b>&nbsp;&nbsp;&nbsp;{{.DeviceName}}</td></tr>{{if .Disabled}}<tr><td colspan="2">&nbsp;</td></tr><tr><td colspan="2"><br>Plugin is disabled in Attributes.</td></tr></tbody></table>{{else}}</tbody></table><form id="{{.FormID}}" onsubmit="return false;"><table border="0" cellpadding="0" cellspacing="3" width="100%"><tbody>{{range .Body}}{{.}}{{end}}</tbody></table></form>{{template "script" .Script}}{{end}}{{end}}

{{define "script"}}<div id="{{.BusyID}}" class="modalLoading" style="display:none;">Saving...</div>
<script>
(function () {
	var cfg = {{.}};
	var form = document.getElementById(cfg.form_id);
	if (!form) { return; }
	var busy = document.getElementById(cfg.busy_id);
	(cfg.toggles || []).forEach(function (t) {
		var sel = document.getElementById(t.control);
		var div = document.getElementById(t.target);
		if (!sel || !div) { return; }
		sel.addEventListener("change", function () {
			div.style.display = (sel.value == "1") ? "block" : "none";
		});
	});
	form.querySelectorAll("[data-live]").forEach(function (el) {
		el.addEventListener("change", function () {
			var vals = [];
			if (el.options) {
				for (var i = 0; i < el.options.length; i++) {
					if (el.options[i].selected) { vals.push(el.options[i].value); }
				}
			} else {
				vals.push(el.value);
			}
			fetch(cfg.variables_url + "/" + encodeURIComponent(el.name) + "?service=" + encodeURIComponent(el.dataset.live) + "&variant=" + encodeURIComponent(cfg.variant), {
				method: "PUT",
				headers: {"Content-Type": "application/json"},
				body: JSON.stringify({value: vals.join(",")})
			}).catch(function (e) { console.log("smartmeter: variable update failed", e); });
		});
	});
	form.querySelectorAll("[data-action]").forEach(function (btn) {
		btn.addEventListener("click", function () {
			fetch(cfg.save_url, {
				method: "POST",
				headers: {"Content-Type": "application/x-www-form-urlencoded"},
				body: new URLSearchParams(new FormData(form))
			}).catch(function (e) { console.log("smartmeter: save failed", e); });
		});
	});
	if (cfg.events_url && window.WebSocket) {
		var proto = (location.protocol === "https:") ? "wss://" : "ws://";
		var url = cfg.events_url.indexOf("ws") === 0 ? cfg.events_url : proto + location.host + cfg.events_url;
		var ws = new WebSocket(url);
		ws.onmessage = function (msg) {
			var ev;
			try { ev = JSON.parse(msg.data); } catch (e) { return; }
			if (ev.device_id !== cfg.device_id) { return; }
			if (ev.type === "busy" && busy) {
				busy.style.display = ev.busy ? "block" : "none";
			} else if (ev.type === "notify") {
				try { window.alert(ev.message); } catch (e) { console.log("smartmeter: " + e); }
			}
		};
	}
})();
</script>{{end}}
`

var tmpl = template.Must(template.Must(template.New("panel").Parse(controlTemplates)).Parse(pageTemplates))
