/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
)

// The browser client is a single inline page: it persists identity and
// session details in localStorage, drives everything over /ws, and
// renders the view events the gateway streams back.
const clientPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta name="theme-color" content="#1d2430">
<title>Raja Rani</title>
<style>
body{font-family:sans-serif;background:#1d2430;color:#e8e8e8;max-width:40em;margin:0 auto;padding:1em;}
button{padding:.5em 1em;margin:.25em;border:0;border-radius:4px;background:#3a6ea5;color:#fff;cursor:pointer;}
button:disabled{background:#555;cursor:default;}
input{padding:.5em;margin:.25em;border-radius:4px;border:0;}
.player{padding:.5em;margin:.25em 0;border-radius:4px;background:#2a3342;}
.player.turn{outline:2px solid #e0b341;}
.player.locked{opacity:.6;}
.notice{padding:.5em;margin:.5em 0;border-radius:4px;background:#5a3342;}
#qr img{background:#fff;padding:.5em;border-radius:4px;}
</style>
</head>
<body>
<h1>Raja Rani</h1>
<div id="lobbyControls">
  <input id="name" placeholder="Your name" maxlength="32">
  <br>
  <button id="create">New game</button>
  <button id="quickplay">Quick play</button>
  <br>
  <input id="code" placeholder="Game code" maxlength="6" style="text-transform:uppercase">
  <button id="join">Join</button>
</div>
<div id="session" style="display:none">
  <p>Game code: <strong id="sessionCode"></strong> <span id="qr"></span></p>
  <div id="players"></div>
  <p id="status"></p>
  <button id="start" style="display:none">Start game</button>
  <button id="leave">Leave</button>
</div>
<div id="notices"></div>
<script>
(function(){
"use strict";
var prefix = {{PREFIX}};
var ws = null;
var view = null;

function $(id){ return document.getElementById(id); }

function notice(text){
  var div = document.createElement("div");
  div.className = "notice";
  div.textContent = text;
  $("notices").prepend(div);
  setTimeout(function(){ div.remove(); }, 8000);
}

function send(msg){
  if (ws && ws.readyState === WebSocket.OPEN) ws.send(JSON.stringify(msg));
}

function connect(){
  var scheme = location.protocol === "https:" ? "wss" : "ws";
  ws = new WebSocket(scheme + "://" + location.host + prefix + "/ws");
  ws.onopen = function(){
    var saved = JSON.parse(localStorage.getItem("rajarani_session") || "null");
    var path = location.pathname.replace(prefix, "");
    if (saved && saved.code) {
      send({type: "resume", code: saved.code, player_id: saved.playerId});
    } else if (path.indexOf("/g/") === 0) {
      $("code").value = path.slice(3, 9);
    }
  };
  ws.onmessage = function(ev){ handle(JSON.parse(ev.data)); };
  ws.onclose = function(){ setTimeout(connect, 2000); };
}

function handle(msg){
  switch (msg.type || msg.kind) {
  case "hello":
    if (msg.name) $("name").value = msg.name;
    break;
  case "view":
    view = msg.view;
    localStorage.setItem("rajarani_session",
      JSON.stringify({code: view.sessionId, playerId: view.playerId}));
    render();
    break;
  case "queued":
    $("status").textContent = "Waiting for more players...";
    break;
  case "matched":
    notice("Match found!");
    break;
  case "interrupted":
    localStorage.removeItem("rajarani_session");
    view = null;
    render();
    notice(msg.reason + (msg.gone ? " (" + msg.gone.join(", ") + ")" : ""));
    break;
  case "guess_result":
    notice(msg.correct ? "Correct guess!" : "Wrong guess - roles swapped!");
    break;
  case "error":
    if (msg.code === "NOT_FOUND") localStorage.removeItem("rajarani_session");
    notice(msg.message);
    break;
  }
}

function render(){
  if (!view) {
    $("lobbyControls").style.display = "";
    $("session").style.display = "none";
    return;
  }
  $("lobbyControls").style.display = "none";
  $("session").style.display = "";
  $("sessionCode").textContent = view.sessionId;
  $("qr").innerHTML = view.state === "lobby"
    ? '<img src="' + prefix + '/g/' + view.sessionId + '/qr" width="96" height="96" alt="QR">'
    : "";

  var self = null;
  var container = $("players");
  container.innerHTML = "";
  (view.players || []).forEach(function(p){
    if (p.isSelf) self = p;
    var div = document.createElement("div");
    div.className = "player" + (p.isCurrentTurn ? " turn" : "") + (p.isLocked ? " locked" : "");
    div.textContent = p.name
      + (p.isSelf ? " (you)" : "")
      + (p.isHost ? " [host]" : "")
      + (p.roleLabel ? " - " + p.roleLabel : "");
    if (view.state === "playing" && self && self.isCurrentTurn && !p.isSelf && !p.isLocked) {
      var btn = document.createElement("button");
      btn.textContent = "Guess";
      btn.onclick = function(){ send({type: "guess", target_id: p.id}); };
      div.appendChild(btn);
    }
    container.appendChild(div);
  });

  $("start").style.display =
    (view.state === "lobby" && self && self.isHost) ? "" : "none";

  if (view.state === "lobby") {
    $("status").textContent = "Waiting for players (" + (view.players || []).length + "/6)...";
  } else if (view.state === "playing") {
    var turnName = "";
    (view.players || []).forEach(function(p){ if (p.isCurrentTurn) turnName = p.name; });
    $("status").textContent = view.seekLabel
      ? "Your turn! Find the " + view.seekLabel + "."
      : "Waiting for " + (turnName || "...");
  } else if (view.state === "completed") {
    var lines = (view.standings || []).map(function(s){
      return s.place + ". " + s.name + " (" + s.label + ") - " + s.points;
    });
    $("status").textContent = "Game over! " + lines.join(" | ");
    localStorage.removeItem("rajarani_session");
  }
}

$("create").onclick = function(){ send({type: "create", name: $("name").value}); };
$("quickplay").onclick = function(){ send({type: "quickplay", name: $("name").value}); };
$("join").onclick = function(){
  send({type: "join", name: $("name").value, code: $("code").value.toUpperCase()});
};
$("start").onclick = function(){ send({type: "start"}); };
$("leave").onclick = function(){
  send({type: "leave"});
  localStorage.removeItem("rajarani_session");
  view = null;
  render();
};

connect();
})();
</script>
</body>
</html>`

func serveHomePage(cfg *Config) httprouter.Handle {
	page := []byte(strings.ReplaceAll(clientPage, "{{PREFIX}}", strconv.Quote(cfg.prefix)))

	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(page)))
		securityHeaders(cfg, w)

		_, _ = w.Write(page)
	}
}

func serveHealthCheck(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		_, err := w.Write([]byte("Ok\n"))
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveRobots(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		data := `User-agent: Amazonbot
Disallow: /

User-agent: Applebot-Extended
Disallow: /

User-agent: Bytespider
Disallow: /

User-agent: CCBot
Disallow: /

User-agent: ClaudeBot
Disallow: /

User-agent: Google-Extended
Disallow: /

User-agent: GPTBot
Disallow: /

User-agent: meta-externalagent
Disallow: /`

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		_, err := w.Write([]byte(data))
		if err != nil {
			errs <- err

			return
		}
	}
}
